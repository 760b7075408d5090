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

package models

import (
	"math"

	"github.com/pkg/errors"
)

// Validate - checks every shape and label invariant of the dataset. Run before anything is written
func (d *SingleCellDataset) Validate() error {
	if d.Counts == nil || d.Expression == nil {
		return errors.Wrap(ErrShapeMismatch, "assays missing")
	}

	rows, cols := d.Counts.Dims()
	if rows != len(d.RowData) || rows != len(d.RowNames) {
		return errors.Wrapf(ErrShapeMismatch, "counts has %v rows, panel has %v rows and %v names", rows, len(d.RowData), len(d.RowNames))
	}
	if cols != len(d.ColData) || cols != len(d.ColNames) {
		return errors.Wrapf(ErrShapeMismatch, "counts has %v columns, cell table has %v rows and %v names", cols, len(d.ColData), len(d.ColNames))
	}

	er, ec := d.Expression.Dims()
	if er != rows || ec != cols {
		return errors.Wrapf(ErrShapeMismatch, "expression is %vx%v, counts is %vx%v", er, ec, rows, cols)
	}

	rowSeen := map[string]bool{}
	for i, row := range d.RowData {
		if d.RowNames[i] != row.ShortName {
			return errors.Wrapf(ErrShapeMismatch, "row %v named %v but panel row is %v", i, d.RowNames[i], row.ShortName)
		}
		if rowSeen[row.ShortName] {
			return errors.Wrapf(ErrDuplicateChannel, "%v", row.ShortName)
		}
		rowSeen[row.ShortName] = true
	}

	colSeen := map[string]bool{}
	for j, cell := range d.ColData {
		if d.ColNames[j] != cell.CellID {
			return errors.Wrapf(ErrShapeMismatch, "column %v named %v but cell is %v", j, d.ColNames[j], cell.CellID)
		}
		if cell.CellID != MakeCellID(cell.ImageName, cell.CellNumber) {
			return errors.Errorf("cell %v does not match its image name %v and cell number %v", cell.CellID, cell.ImageName, cell.CellNumber)
		}
		if colSeen[cell.CellID] {
			return errors.Wrapf(ErrDuplicateCellID, "%v", cell.CellID)
		}
		colSeen[cell.CellID] = true

		if j > 0 {
			prev := d.ColData[j-1]
			if prev.ImageNumber > cell.ImageNumber || (prev.ImageNumber == cell.ImageNumber && prev.CellNumber > cell.CellNumber) {
				return errors.Errorf("cells not ordered by image and cell number at %v", cell.CellID)
			}
		}
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			e, c := d.Expression.At(i, j), d.Counts.At(i, j)
			if e != math.Asinh(c) && !(math.IsNaN(e) && math.IsNaN(c)) {
				return errors.Errorf("expression at %v,%v is not asinh of counts", d.RowNames[i], d.ColNames[j])
			}
		}
	}

	return nil
}

// ValidateCollections - images and masks must line up entry by entry, masks must be single
// channel and the same size as their image, and every image must have one name per channel
func ValidateCollections(images *ImageCollection, masks *ImageCollection) error {
	if images.Len() != masks.Len() {
		return errors.Wrapf(ErrNameMismatch, "%v images but %v masks", images.Len(), masks.Len())
	}

	for k := range images.Entries {
		img := images.Entries[k]
		mask := masks.Entries[k]

		if img.ImageName != mask.ImageName {
			return errors.Wrapf(ErrNameMismatch, "entry %v: image %v, mask %v", k, img.ImageName, mask.ImageName)
		}

		if img.Raster.Channels() != len(images.ChannelNames) {
			return errors.Wrapf(ErrChannelCount, "image %v has %v channels, %v names", img.ID, img.Raster.Channels(), len(images.ChannelNames))
		}

		if mask.Raster.Channels() != 1 {
			return errors.Wrapf(ErrChannelCount, "mask %v has %v channels", mask.ID, mask.Raster.Channels())
		}

		if img.Raster.Width != mask.Raster.Width || img.Raster.Height != mask.Raster.Height {
			return errors.Wrapf(ErrShapeMismatch, "image %v is %vx%v, mask is %vx%v", img.ImageName, img.Raster.Width, img.Raster.Height, mask.Raster.Width, mask.Raster.Height)
		}
	}

	return nil
}
