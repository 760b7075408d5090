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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Generic interface for reading/writing prepared dataset files. Outputs either land in a local
// directory or in an S3 bucket, so the output code is written against this and the "bucket" is
// a root directory for the local implementation.

type FileAccess interface {
	ListObjects(bucket string, prefix string) ([]string, error)
	ObjectExists(bucket string, path string) (bool, error)

	ReadObject(bucket string, path string) ([]byte, error)
	WriteObject(bucket string, path string, data []byte) error

	ReadJSON(bucket string, path string, itemsPtr interface{}, emptyIfNotFound bool) error
	WriteJSON(bucket string, path string, itemsPtr interface{}) error

	DeleteObject(bucket string, path string) error

	IsNotFoundError(err error) bool
}

// readJSON and writeJSON are shared by both implementations, only the byte transport differs
func readJSON(fa FileAccess, bucket string, filePath string, itemsPtr interface{}, emptyIfNotFound bool) error {
	data, err := fa.ReadObject(bucket, filePath)
	if err != nil {
		if emptyIfNotFound && fa.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, itemsPtr)
}

func writeJSON(fa FileAccess, bucket string, filePath string, itemsPtr interface{}) error {
	data, err := json.MarshalIndent(itemsPtr, "", PrettyPrintIndentForJSON)
	if err != nil {
		return err
	}
	return fa.WriteObject(bucket, filePath, data)
}

// PrettyPrintIndentForJSON - indent used when writing JSON files people may read
const PrettyPrintIndentForJSON = "    "

func MakeValidObjectName(name string) string {
	name = strings.ReplaceAll(name, "?", "")
	name = strings.ReplaceAll(name, "$", "")
	name = strings.ReplaceAll(name, "#", "")
	name = strings.ReplaceAll(name, "!", "")
	name = strings.ReplaceAll(name, "'", "")
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")

	return name
}

// MakeEmptyLocalDirectory - creates (or empties) workingDir/subdir and returns its path
func MakeEmptyLocalDirectory(workingDir string, subdir string) (string, error) {
	dirPath := filepath.Join(workingDir, subdir)

	err := os.RemoveAll(dirPath)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(dirPath, 0777)
	if err != nil {
		return "", err
	}

	return dirPath, nil
}
