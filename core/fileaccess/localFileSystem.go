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

package fileaccess

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Implementation of file access using local file system
type FSAccess struct {
}

// ListObjects - returns paths relative to rootPath, in lexical order, for every file under
// rootPath/prefix. The order is relied on by callers that load files "in listing order"
func (fsa *FSAccess) ListObjects(rootPath string, prefix string) ([]string, error) {
	result := []string{}

	rootOnly := path.Join(rootPath) // Using path.Join to make it match the fullPath cleans off ./ for example
	fullPath := fsa.filePath(rootPath, prefix)

	// A prefix may be a partial file name, so walk its directory and filter
	walkRoot := fullPath
	if info, err := os.Stat(fullPath); err != nil || !info.IsDir() {
		walkRoot = filepath.Dir(fullPath)
	}

	err := filepath.Walk(walkRoot, func(pathFound string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasPrefix(pathFound, fullPath) {
			// pathFound contains the root directory, so we chop it off
			toSave := pathFound
			if strings.HasPrefix(toSave, rootOnly) && len(rootOnly) > 0 && rootOnly != "." {
				toSave = toSave[len(rootOnly)+1:]
			}
			result = append(result, toSave)
		}
		return nil
	})

	if err != nil && fsa.IsNotFoundError(err) {
		return []string{}, nil
	}

	sort.Strings(result)
	return result, err
}

func (fsa *FSAccess) ObjectExists(rootPath string, path string) (bool, error) {
	_, err := os.Stat(fsa.filePath(rootPath, path))
	if err == nil {
		return true, nil
	}
	if fsa.IsNotFoundError(err) {
		return false, nil
	}
	return false, err
}

func (fsa *FSAccess) ReadObject(rootPath string, path string) ([]byte, error) {
	fullPath := fsa.filePath(rootPath, path)
	return os.ReadFile(fullPath)
}

func (fsa *FSAccess) WriteObject(rootPath string, path string, data []byte) error {
	fullPath := fsa.filePath(rootPath, path)

	// Ensure any subdirs in between are created
	createPath := filepath.Dir(fullPath)
	err := os.MkdirAll(createPath, 0777)
	if err != nil {
		return err
	}

	// Write the file out, this will create if needed else truncate and write
	return os.WriteFile(fullPath, data, 0666)
}

func (fsa *FSAccess) ReadJSON(rootPath string, path string, itemsPtr interface{}, emptyIfNotFound bool) error {
	return readJSON(fsa, rootPath, path, itemsPtr, emptyIfNotFound)
}

func (fsa *FSAccess) WriteJSON(rootPath string, path string, itemsPtr interface{}) error {
	return writeJSON(fsa, rootPath, path, itemsPtr)
}

// DeleteObject - removes the file, then any directories above it (below rootPath) left empty, so
// a deleted dataset doesn't leave a skeleton of folders behind
func (fsa *FSAccess) DeleteObject(rootPath string, path string) error {
	fullPath := fsa.filePath(rootPath, path)
	if err := os.Remove(fullPath); err != nil {
		return err
	}

	for dir := filepath.Dir(fullPath); isBelow(dir, rootPath); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			// Not empty
			break
		}
	}
	return nil
}

func isBelow(dir string, rootPath string) bool {
	rel, err := filepath.Rel(filepath.Clean(rootPath), dir)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func (fsa *FSAccess) IsNotFoundError(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func (fsa *FSAccess) filePath(rootPath string, filePath string) string {
	return path.Join(rootPath, filePath)
}
