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
	"path"
	"time"
)

// Summary - what a prep run produced, written as summary.json next to the data files
type Summary struct {
	DatasetName    string
	CreatedUnixSec int64

	Cells        int
	Channels     int
	Images       int
	Masks        int
	ChannelNames []string
	ImageNames   []string
	DonorColumns []string

	DroppedCells map[string]int // By join
	DroppedMasks int

	Files []string
}

// WriteSummary - stamps the creation time, lists the files written so far and saves the summary.
// Returns the summary as saved
func (w *Writer) WriteSummary(s Summary, now time.Time) (Summary, error) {
	s.CreatedUnixSec = now.Unix()
	s.Files = append([]string{}, w.written...)

	savePath := path.Join(w.root, SummaryFile)
	if err := w.files.WriteJSON(w.bucket, savePath, s); err != nil {
		return s, err
	}
	w.written = append(w.written, SummaryFile)
	w.log.Infof("Wrote %v", savePath)
	return s, nil
}
