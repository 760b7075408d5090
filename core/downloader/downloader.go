// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Fetches source files (CSV tables, zipped TIFF sets) into a local working directory. Sources
// may be http(s) URLs, file:// URLs or plain local paths. There is no retry or timeout beyond
// what the caller puts on the context: a failed fetch is fatal for a prep run.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/pkg/errors"
)

type Downloader struct {
	client *http.Client
	log    logger.ILogger
}

func NewDownloader(client *http.Client, log logger.ILogger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, log: log}
}

// Fetch - saves the source into destDir, named after the last element of its path, and returns
// the saved file path
func (d *Downloader) Fetch(ctx context.Context, source string, destDir string) (string, error) {
	if len(source) <= 0 {
		return "", errors.New("no source location configured")
	}

	u, err := url.Parse(source)
	if err != nil {
		return "", errors.Wrapf(err, "invalid source location %v", source)
	}

	fileName := SourceFileName(source)
	if len(fileName) <= 0 {
		return "", fmt.Errorf("failed to determine file name for source %v", source)
	}

	savePath := filepath.Join(destDir, fileName)
	if err := os.MkdirAll(destDir, 0777); err != nil {
		return "", err
	}

	var n int64
	switch u.Scheme {
	case "http", "https":
		n, err = d.fetchHTTP(ctx, source, savePath)
	case "file":
		n, err = copyLocal(u.Path, savePath)
	case "":
		n, err = copyLocal(source, savePath)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch %v", source)
	}

	d.log.Infof("Fetched %v (%v) -> %v", source, humanize.Bytes(uint64(n)), savePath)
	return savePath, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, source string, savePath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected HTTP status: %v", resp.Status)
	}

	return writeFile(resp.Body, savePath)
}

func copyLocal(srcPath string, savePath string) (int64, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return writeFile(f, savePath)
}

func writeFile(r io.Reader, savePath string) (int64, error) {
	out, err := os.Create(savePath)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(savePath)
		return n, err
	}
	return n, closeErr
}

// SourceFileName - the file name a source would be saved as, ignoring any query string
func SourceFileName(source string) string {
	if u, err := url.Parse(source); err == nil && len(u.Scheme) > 0 {
		source = u.Path
	}
	source = strings.TrimSuffix(source, "/")
	if len(source) <= 0 {
		return ""
	}
	name := path.Base(filepath.ToSlash(source))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
