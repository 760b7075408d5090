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

// Deriving image names from file names. The image name is the shared key between cell table
// rows, images and masks.
package names

import (
	"path"
	"strings"
)

const (
	// Removed from FileName_CleanStack in the image table
	ImageTableFileSuffix = "_a0_full_clean.tiff"
	// Removed from image stack IDs
	ImageStackSubstring = "_a0_full_clean"
	// Removed from mask IDs
	MaskStackSubstring = "_a0_full_mask"

	// File name endings selecting which rasters belong to each collection
	ImageFilePattern = "_full_clean.tiff"
	MaskFilePattern  = "_full_mask.tiff"
)

// StripFixed - removes the first occurrence of sub from name. If sub is not there, name comes
// back unchanged and found is false. Callers decide whether that matters, the prep pipeline
// only logs it
func StripFixed(name string, sub string) (result string, found bool) {
	if len(sub) <= 0 {
		return name, false
	}
	idx := strings.Index(name, sub)
	if idx < 0 {
		return name, false
	}
	return name[:idx] + name[idx+len(sub):], true
}

// StackID - file name without directory or extension, used as the raster's identifier
func StackID(filePath string) string {
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// MatchesPattern - does the file name end with the collection's pattern
func MatchesPattern(filePath string, pattern string) bool {
	return strings.HasSuffix(path.Base(strings.ReplaceAll(filePath, "\\", "/")), pattern)
}
