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

// Acquisition of the published source files. Everything is fetched into a temporary working
// directory which is removed when the acquisition phase ends, whatever the outcome. Within it,
// each source's files are deleted as soon as they've been loaded into memory.
package acquisition

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/imcdata/imcprep/core/downloader"
	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/core/utils"
	"github.com/imcdata/imcprep/data-prep/config"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/pkg/errors"
)

// Session - one acquisition phase, only valid inside the function passed to Run
type Session struct {
	dl   *downloader.Downloader
	log  logger.ILogger
	root string
	next int
}

// Run - creates a temp dir under workingDir, calls fn with a session fetching into it, and
// removes the dir once fn returns
func Run(ctx context.Context, workingDir string, dl *downloader.Downloader, log logger.ILogger, fn func(ctx context.Context, s *Session) error) error {
	if err := os.MkdirAll(workingDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create working dir %v", workingDir)
	}

	root, err := os.MkdirTemp(workingDir, "imcprep-")
	if err != nil {
		return errors.Wrap(err, "failed to create temp dir")
	}

	defer func() {
		if err := os.RemoveAll(root); err != nil {
			log.Errorf("Failed to remove temp dir %v: %v", root, err)
		} else {
			log.Debugf("Removed temp dir %v", root)
		}
	}()

	s := &Session{dl: dl, log: log, root: root}
	return fn(ctx, s)
}

// ReadTable - fetches and reads a comma separated table, then deletes the downloaded files
func (s *Session) ReadTable(ctx context.Context, src config.TableSource) (*tables.Table, error) {
	var result *tables.Table
	err := s.withSourceFile(ctx, src, func(filePath string) error {
		var err error
		result, err = tables.ReadCSV(filePath, ',')
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Read %v rows, %v columns from %v", result.Len(), len(result.Header), describe(src))
	return result, nil
}

// ReadChannelMasses - fetches and reads the headerless channel-mass lookup
func (s *Session) ReadChannelMasses(ctx context.Context, src config.TableSource) ([]string, error) {
	var result []string
	err := s.withSourceFile(ctx, src, func(filePath string) error {
		var err error
		result, err = tables.ReadFirstColumn(filePath)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Read %v channel masses from %v", len(result), describe(src))
	return result, nil
}

// WithRasterDir - fetches a zip of raster files, extracts it, deletes the zip and calls fn with
// the directory holding the extracted files. They are removed when fn returns
func (s *Session) WithRasterDir(ctx context.Context, source string, fn func(dir string) error) error {
	dir, err := s.makeDir()
	if err != nil {
		return err
	}
	defer s.removeDir(dir)

	archive, err := s.dl.Fetch(ctx, source, dir)
	if err != nil {
		return err
	}

	kind, err := utils.DetectArchive(archive)
	if err != nil {
		return errors.Wrapf(err, "failed to inspect %v", source)
	}

	extractDir := filepath.Join(dir, "extracted")
	switch kind {
	case utils.ZipArchive:
		files, err := utils.UnzipDirectory(archive, extractDir, true)
		if err != nil {
			return errors.Wrapf(err, "failed to extract %v", source)
		}
		if err := os.Remove(archive); err != nil {
			return errors.Wrapf(err, "failed to remove %v", archive)
		}
		s.log.Infof("Extracted %v files from %v", len(files), source)
	case utils.GzipArchive:
		if _, err := utils.GunzipFile(archive); err != nil {
			return errors.Wrapf(err, "failed to unpack %v", source)
		}
		if err := os.Remove(archive); err != nil {
			return errors.Wrapf(err, "failed to remove %v", archive)
		}
		extractDir = dir
	default:
		// Not an archive, the fetched file is loaded on its own
		extractDir = dir
	}

	return fn(extractDir)
}

// withSourceFile - fetches src into its own dir, unpacks it if needed, calls fn with the table
// file and removes everything afterwards
func (s *Session) withSourceFile(ctx context.Context, src config.TableSource, fn func(filePath string) error) error {
	dir, err := s.makeDir()
	if err != nil {
		return err
	}
	defer s.removeDir(dir)

	filePath, err := s.dl.Fetch(ctx, src.URL, dir)
	if err != nil {
		return err
	}

	kind, err := utils.DetectArchive(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to inspect %v", describe(src))
	}

	switch kind {
	case utils.ZipArchive:
		filePath, err = extractMember(filePath, filepath.Join(dir, "extracted"), src.Member)
	case utils.GzipArchive:
		filePath, err = unpackGzip(filePath, src.Member)
	default:
		if len(src.Member) > 0 {
			err = fmt.Errorf("member %v configured but the download is not an archive", src.Member)
		}
	}
	if err != nil {
		return errors.Wrapf(err, "failed to unpack %v", describe(src))
	}

	if err := fn(filePath); err != nil {
		return errors.Wrapf(err, "failed to read %v", describe(src))
	}
	return nil
}

// extractMember - unzips archive and returns the path of the file named member. With no member
// configured the archive must hold exactly one file
func extractMember(archive string, dest string, member string) (string, error) {
	files, err := utils.UnzipDirectory(archive, dest, false)
	if err != nil {
		return "", err
	}
	if err := os.Remove(archive); err != nil {
		return "", err
	}

	if len(member) <= 0 {
		if len(files) != 1 {
			return "", fmt.Errorf("archive holds %v files, configure which member to read", len(files))
		}
		return files[0], nil
	}

	want := filepath.FromSlash(member)
	for _, f := range files {
		rel, err := filepath.Rel(dest, f)
		if err == nil && (rel == want || filepath.Base(f) == want) {
			return f, nil
		}
	}
	return "", fmt.Errorf("archive has no member %v", member)
}

// unpackGzip - a gzip holds a single file, so a configured member can only name that file
func unpackGzip(archive string, member string) (string, error) {
	filePath, err := utils.GunzipFile(archive)
	if err != nil {
		return "", err
	}
	if len(member) > 0 && filepath.Base(filePath) != path.Base(member) {
		return "", fmt.Errorf("gzip holds %v, not member %v", filepath.Base(filePath), member)
	}
	return filePath, nil
}

func (s *Session) makeDir() (string, error) {
	s.next++
	return fileaccess.MakeEmptyLocalDirectory(s.root, fmt.Sprintf("source-%v", s.next))
}

func (s *Session) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Errorf("Failed to remove %v: %v", dir, err)
	}
}

func describe(src config.TableSource) string {
	if len(src.Member) > 0 {
		return src.URL + "[" + src.Member + "]"
	}
	return src.URL
}
