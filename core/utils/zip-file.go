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

// Helpers for unpacking downloaded source archives and small generic collection functions
package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// UnzipDirectory - extracts src into dest, returning the paths written. If flattenPaths is set,
// directory structure inside the zip is discarded and every file lands directly in dest
func UnzipDirectory(src string, dest string, flattenPaths bool) ([]string, error) {
	var filenames []string
	r, err := zip.OpenReader(src)
	if err != nil {
		return filenames, err
	}
	defer r.Close()

	for _, f := range r.File {
		// If the zip path starts with __MACOSX, ignore it, it's garbage that a mac laptop has included...
		if strings.HasPrefix(f.Name, "__MACOSX") {
			continue
		}

		thisPath := f.Name
		if flattenPaths {
			// This may end in a /, in which case there's nothing to write
			if strings.HasSuffix(thisPath, "/") {
				continue
			}
			thisPath = path.Base(thisPath)
		}

		fpath := filepath.Join(dest, thisPath)

		// Check for ZipSlip. More Info: http://bit.ly/2MsjAWE
		if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return filenames, fmt.Errorf("%s: illegal file path", fpath)
		}

		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(fpath, os.ModePerm); err != nil {
				return filenames, err
			}
			continue
		}

		filenames = append(filenames, fpath)

		if err = os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return filenames, err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return filenames, err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return filenames, err
		}

		_, err = io.Copy(outFile, rc)

		// Close the file without defer to close before next iteration of loop
		outFile.Close()
		rc.Close()

		if err != nil {
			return filenames, err
		}
	}
	return filenames, nil
}

// ArchiveKind - container format of a downloaded file, as told by its leading bytes
type ArchiveKind int

const (
	NotArchive ArchiveKind = iota
	ZipArchive
	GzipArchive
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}
var gzipMagic = []byte{0x1f, 0x8b}

// DetectArchive - reads the first bytes of filePath to tell zip and gzip files apart from anything
// else. Source URLs often end in opaque names, so the extension is never consulted
func DetectArchive(filePath string) (ArchiveKind, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return NotArchive, err
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return NotArchive, err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return ZipArchive, nil
	case bytes.HasPrefix(head, gzipMagic):
		return GzipArchive, nil
	}
	return NotArchive, nil
}

// GunzipFile - decompresses src next to itself and returns the new path. A .gz extension (any case)
// is dropped, otherwise the output gets an .unpacked suffix
func GunzipFile(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	dest := src + ".unpacked"
	if ext := filepath.Ext(src); strings.EqualFold(ext, ".gz") {
		dest = strings.TrimSuffix(src, ext)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(out, zr)
	closeErr := out.Close()
	if err != nil {
		return "", err
	}
	return dest, closeErr
}
