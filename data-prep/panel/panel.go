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

// Building the channel panel. Both the cell table (assay row metadata) and the image collection
// (channel names) use this, so the two always agree on channel order.
package panel

import (
	"strconv"
	"strings"

	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/pkg/errors"
)

const (
	ColFull      = "full"
	ColMetalTag  = "MetalTag"
	ColShortName = "shortname"
)

// Build - keeps panel rows flagged full, ordered to match the channel-mass lookup. Every lookup
// entry must match exactly one full row. Full rows the lookup doesn't name are left out
func Build(raw *tables.Table, masses []string, log logger.ILogger) ([]models.PanelRow, error) {
	idxs, err := raw.ColumnIndexes(ColFull, ColMetalTag, ColShortName)
	if err != nil {
		return nil, errors.Wrap(err, "panel")
	}
	fullIdx, metalIdx, nameIdx := idxs[0], idxs[1], idxs[2]

	fullRows := []models.PanelRow{}
	for r, row := range raw.Rows {
		full, err := strconv.ParseBool(strings.TrimSpace(row[fullIdx]))
		if err != nil {
			return nil, errors.Wrapf(err, "panel row %v: invalid %v value", r+1, ColFull)
		}
		if !full {
			continue
		}

		attrs := map[string]string{}
		for c, col := range raw.Header {
			if c != fullIdx && c != metalIdx && c != nameIdx {
				attrs[col] = row[c]
			}
		}

		fullRows = append(fullRows, models.PanelRow{
			MetalTag:   strings.TrimSpace(row[metalIdx]),
			ShortName:  strings.TrimSpace(row[nameIdx]),
			Full:       true,
			Attributes: attrs,
		})
	}

	used := make([]bool, len(fullRows))
	result := make([]models.PanelRow, 0, len(masses))
	for pos, mass := range masses {
		match := -1
		for i, row := range fullRows {
			if row.MetalTag != mass {
				continue
			}
			if match >= 0 {
				return nil, errors.Wrapf(models.ErrAmbiguousPanelRow, "%v (lookup position %v)", mass, pos+1)
			}
			match = i
		}

		if match < 0 {
			return nil, errors.Wrapf(models.ErrMissingPanelRow, "%v (lookup position %v)", mass, pos+1)
		}

		used[match] = true
		result = append(result, fullRows[match])
	}

	for i, row := range fullRows {
		if !used[i] {
			log.Infof("Panel row %v (%v) is not in the channel-mass lookup, leaving it out", row.ShortName, row.MetalTag)
		}
	}

	seen := map[string]bool{}
	for _, row := range result {
		if seen[row.ShortName] {
			return nil, errors.Wrapf(models.ErrDuplicateChannel, "%v", row.ShortName)
		}
		seen[row.ShortName] = true
	}

	return result, nil
}

// ShortNames - channel labels in panel order
func ShortNames(rows []models.PanelRow) []string {
	result := make([]string, len(rows))
	for i, row := range rows {
		result[i] = row.ShortName
	}
	return result
}
