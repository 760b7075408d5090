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

package output

import (
	"fmt"
	"path"
	"strings"

	"github.com/imcdata/imcprep/core/utils"
	"github.com/pkg/errors"
)

// ErrForeignOutput - the dataset directory holds files a previous prep run of this dataset didn't write
var ErrForeignOutput = errors.New("output location holds files not written by a prep of this dataset")

// ClearPrevious - empties the dataset root before anything is written. Output of an earlier run
// is recognised by its summary: it must name this dataset and list every file found. Anything
// else is left alone and ErrForeignOutput returned
func (w *Writer) ClearPrevious() error {
	listed, err := w.files.ListObjects(w.bucket, w.root+"/")
	if err != nil {
		return errors.Wrapf(err, "failed to list %v", w.root)
	}

	// A missing root can make a local listing fall back to its parent, only keep what's inside
	existing := []string{}
	for _, p := range listed {
		if strings.HasPrefix(p, w.root+"/") {
			existing = append(existing, p)
		}
	}
	if len(existing) <= 0 {
		return nil
	}

	summaryPath := path.Join(w.root, SummaryFile)
	exists, err := w.files.ObjectExists(w.bucket, summaryPath)
	if err != nil {
		return errors.Wrapf(err, "failed to check for %v", summaryPath)
	}
	if !exists {
		return errors.Wrapf(ErrForeignOutput, "%v holds %v files but no %v", w.root, len(existing), SummaryFile)
	}

	var prev Summary
	if err := w.files.ReadJSON(w.bucket, summaryPath, &prev, false); err != nil {
		return errors.Wrapf(err, "failed to read %v", summaryPath)
	}
	if prev.DatasetName != w.datasetName {
		return errors.Wrapf(ErrForeignOutput, "%v was written for dataset %v", summaryPath, prev.DatasetName)
	}

	known := utils.SetFromSlice(append(prev.Files, SummaryFile))
	for _, p := range existing {
		if !known[strings.TrimPrefix(p, w.root+"/")] {
			return errors.Wrapf(ErrForeignOutput, "%v is not listed in %v", p, summaryPath)
		}
	}

	// Summary goes first so an interrupted clear can't leave a summary describing missing files
	existing = append([]string{summaryPath}, existing...)
	deleted := map[string]bool{}
	for _, p := range existing {
		if deleted[p] {
			continue
		}
		if err := w.files.DeleteObject(w.bucket, p); err != nil {
			return errors.Wrapf(err, "failed to delete previous output %v", p)
		}
		deleted[p] = true
	}

	w.log.Infof("Removed %v files of the previous %v output from %v", len(deleted), w.datasetName, w.root)
	return nil
}

// Rollback - deletes everything this writer wrote, newest first. Every file is attempted, failures
// are logged and reported together
func (w *Writer) Rollback() error {
	failed := []string{}
	for i := len(w.written) - 1; i >= 0; i-- {
		p := path.Join(w.root, w.written[i])
		if err := w.files.DeleteObject(w.bucket, p); err != nil {
			w.log.Errorf("Failed to delete %v while rolling back: %v", p, err)
			failed = append(failed, w.written[i])
			continue
		}
		w.log.Infof("Rolled back %v", p)
	}

	w.written = failed
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete %v during rollback", strings.Join(failed, ", "))
	}
	return nil
}
