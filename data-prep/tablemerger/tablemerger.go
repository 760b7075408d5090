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

// Table merger: joins the published cell, image, cell type and donor tables into one annotated
// cell table, and pulls the per-channel mean intensities out of the cell table as the counts
// assay. Joins are inner joins, rows present on one side only are dropped and counted.
package tablemerger

import (
	"math"
	"sort"
	"strconv"

	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/names"
	"github.com/imcdata/imcprep/data-prep/panel"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Inputs - the raw tables as read from the downloaded files
type Inputs struct {
	Cells     *tables.Table
	Images    *tables.Table
	CellTypes *tables.Table
	Donors    *tables.Table
	Panel     *tables.Table

	// Channel-mass lookup, in image stack order
	ChannelMasses []string
}

// MergeReport - what the joins did to the row counts
type MergeReport struct {
	InputCells  int
	OutputCells int
	Channels    int

	// Rows dropped by each inner join, keyed by JoinImages, JoinCellTypes, JoinDonors
	Dropped map[string]int

	// Image file names that didn't carry the expected suffix and were used unchanged
	UnstrippedImageNames int
}

// A cell as it flows through the joins. src is its row in the raw cell table, which is where
// its intensities are read from once the final order is known
type joinedCell struct {
	models.CellRecord
	src int
}

type mergeState struct {
	in  Inputs
	log logger.ILogger

	cells        []joinedCell
	donorColumns []string
	panelRows    []models.PanelRow
	counts       *mat.Dense
	expression   *mat.Dense

	report MergeReport
}

type stage struct {
	name string
	run  func(s *mergeState) error
}

// Runs in this order, each stage only reading what the ones before it produced
var stages = []stage{
	{"select cell columns", selectCells},
	{"join images", joinImages},
	{"join cell types", joinCellTypes},
	{"join donors", joinDonors},
	{"order cells", orderCells},
	{"build panel", buildPanel},
	{"build counts", buildCounts},
	{"build expression", buildExpression},
}

// Merge - builds the single-cell dataset from the raw tables. The returned dataset has passed
// Validate
func Merge(in Inputs, log logger.ILogger) (*models.SingleCellDataset, MergeReport, error) {
	s := &mergeState{
		in:     in,
		log:    log,
		report: MergeReport{Dropped: map[string]int{JoinImages: 0, JoinCellTypes: 0, JoinDonors: 0}},
	}

	for _, st := range stages {
		if err := st.run(s); err != nil {
			return nil, s.report, errors.Wrapf(err, "table merge failed at \"%v\"", st.name)
		}

		// Empty matrices can't be represented, and an empty result is never what was intended
		if len(s.cells) <= 0 {
			return nil, s.report, errors.Errorf("table merge: no cells left after \"%v\"", st.name)
		}
		log.Debugf("Merge stage \"%v\" done, %v cells", st.name, len(s.cells))
	}

	result := &models.SingleCellDataset{
		Counts:       s.counts,
		Expression:   s.expression,
		RowNames:     panel.ShortNames(s.panelRows),
		ColNames:     make([]string, len(s.cells)),
		RowData:      s.panelRows,
		ColData:      make([]models.CellRecord, len(s.cells)),
		DonorColumns: s.donorColumns,
	}
	for j, c := range s.cells {
		result.ColNames[j] = c.CellID
		result.ColData[j] = c.CellRecord
	}

	s.report.OutputCells = len(s.cells)
	s.report.Channels = len(s.panelRows)

	if err := result.Validate(); err != nil {
		return nil, s.report, errors.Wrap(err, "merged dataset is inconsistent")
	}

	return result, s.report, nil
}

func selectCells(s *mergeState) error {
	t := s.in.Cells
	idxs, err := t.ColumnIndexes(colImageNumber, colObjectNumber, colPosX, colPosY, colParentIslet, colClosestIslet, colArea, colNbNeighbours)
	if err != nil {
		return errors.Wrap(err, "cell table")
	}

	s.cells = make([]joinedCell, 0, t.Len())
	for r, row := range t.Rows {
		c := joinedCell{src: r}
		ints := []*int{&c.ImageNumber, &c.CellNumber, nil, nil, &c.ParentIslet, &c.ClosestIslet, nil, &c.NbNeighbours}
		floats := []*float64{nil, nil, &c.PosX, &c.PosY, nil, nil, &c.Area, nil}

		for i, idx := range idxs {
			if ints[i] != nil {
				*ints[i], err = tables.ParseInt(row[idx])
			} else {
				*floats[i], err = tables.ParseFloat(row[idx])
			}
			if err != nil {
				return errors.Wrapf(err, "cell table row %v, column %v", r+1, t.Header[idx])
			}
		}

		s.cells = append(s.cells, c)
	}

	s.report.InputCells = len(s.cells)
	return nil
}

func readImages(s *mergeState) (map[int][]models.ImageRecord, error) {
	t := s.in.Images
	idxs, err := t.ColumnIndexes(colImageNumber, colImageFileName, colImageSlide, colImageWidth, colImageHeight)
	if err != nil {
		return nil, errors.Wrap(err, "image table")
	}

	result := map[int][]models.ImageRecord{}
	for r, row := range t.Rows {
		img := models.ImageRecord{FileName: row[idxs[1]], Slide: row[idxs[2]]}
		ints := []struct {
			idx  int
			dest *int
		}{{idxs[0], &img.ImageNumber}, {idxs[3], &img.Width}, {idxs[4], &img.Height}}

		for _, f := range ints {
			if *f.dest, err = tables.ParseInt(row[f.idx]); err != nil {
				return nil, errors.Wrapf(err, "image table row %v, column %v", r+1, t.Header[f.idx])
			}
		}
		result[img.ImageNumber] = append(result[img.ImageNumber], img)
	}
	return result, nil
}

func joinImages(s *mergeState) error {
	images, err := readImages(s)
	if err != nil {
		return err
	}

	joined := make([]joinedCell, 0, len(s.cells))
	for _, c := range s.cells {
		for _, img := range images[c.ImageNumber] {
			imageName, found := names.StripFixed(img.FileName, names.ImageTableFileSuffix)
			if !found {
				s.log.Debugf("Image file name %v doesn't contain %v, using it unchanged", img.FileName, names.ImageTableFileSuffix)
				s.report.UnstrippedImageNames++
			}

			c.ImageName = imageName
			c.ImageFullName = img.FileName
			c.Slide = img.Slide
			c.Width = img.Width
			c.Height = img.Height
			c.CellID = models.MakeCellID(c.ImageName, c.CellNumber)
			joined = append(joined, c)
		}
	}

	s.dropped(JoinImages, len(s.cells), len(joined))
	s.cells = joined
	return nil
}

func joinCellTypes(s *mergeState) error {
	t := s.in.CellTypes
	idxs, err := t.ColumnIndexes(colCellTypeID, colCellCat, colCellType)
	if err != nil {
		return errors.Wrap(err, "cell type table")
	}

	byID := map[string][][]string{}
	for _, row := range t.Rows {
		byID[row[idxs[0]]] = append(byID[row[idxs[0]]], row)
	}

	joined := make([]joinedCell, 0, len(s.cells))
	for _, c := range s.cells {
		for _, row := range byID[c.CellID] {
			c.CellCat = row[idxs[1]]
			c.CellType = row[idxs[2]]
			joined = append(joined, c)
		}
	}

	s.dropped(JoinCellTypes, len(s.cells), len(joined))
	s.cells = joined
	return nil
}

func joinDonors(s *mergeState) error {
	t := s.in.Donors
	slideIdx, err := t.ColumnIndex(colDonorSlide)
	if err != nil {
		return errors.Wrap(err, "donor table")
	}

	s.donorColumns = []string{}
	for c, col := range t.Header {
		if c != slideIdx {
			s.donorColumns = append(s.donorColumns, col)
		}
	}

	bySlide := map[string][][]string{}
	for _, row := range t.Rows {
		bySlide[row[slideIdx]] = append(bySlide[row[slideIdx]], row)
	}

	joined := make([]joinedCell, 0, len(s.cells))
	for _, c := range s.cells {
		for _, row := range bySlide[c.Slide] {
			donor := make(map[string]string, len(s.donorColumns))
			for col, v := range row {
				if col != slideIdx {
					donor[t.Header[col]] = v
				}
			}
			c.Donor = donor
			joined = append(joined, c)
		}
	}

	s.dropped(JoinDonors, len(s.cells), len(joined))
	s.cells = joined
	return nil
}

func orderCells(s *mergeState) error {
	sort.SliceStable(s.cells, func(i, j int) bool {
		a, b := s.cells[i], s.cells[j]
		if a.ImageNumber != b.ImageNumber {
			return a.ImageNumber < b.ImageNumber
		}
		return a.CellNumber < b.CellNumber
	})

	seen := make(map[string]bool, len(s.cells))
	for _, c := range s.cells {
		if seen[c.CellID] {
			return errors.Wrapf(models.ErrDuplicateCellID, "%v", c.CellID)
		}
		seen[c.CellID] = true
	}
	return nil
}

func buildPanel(s *mergeState) error {
	rows, err := panel.Build(s.in.Panel, s.in.ChannelMasses, s.log)
	if err != nil {
		return err
	}
	s.panelRows = rows
	return nil
}

type intensityColumnRef struct {
	channel int
	col     int
}

// intensityColumns - the mean intensity columns of the cell table, in channel number order
func intensityColumns(t *tables.Table) ([]intensityColumnRef, error) {
	result := []intensityColumnRef{}
	for c, col := range t.Header {
		m := intensityColumn.FindStringSubmatch(col)
		if m == nil {
			continue
		}
		ch, err := strconv.Atoi(m[intensityColGroup])
		if err != nil {
			return nil, errors.Wrapf(err, "bad channel number in column %v", col)
		}
		result = append(result, intensityColumnRef{channel: ch, col: c})
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].channel < result[j].channel })

	for i := 1; i < len(result); i++ {
		if result[i].channel == result[i-1].channel {
			return nil, errors.Errorf("channel %v has more than one intensity column", result[i].channel)
		}
	}
	return result, nil
}

func buildCounts(s *mergeState) error {
	t := s.in.Cells
	cols, err := intensityColumns(t)
	if err != nil {
		return err
	}

	if len(cols) != len(s.panelRows) {
		return errors.Wrapf(models.ErrShapeMismatch, "cell table has %v intensity columns, panel has %v rows", len(cols), len(s.panelRows))
	}
	if len(cols) <= 0 {
		return errors.Wrap(models.ErrShapeMismatch, "no intensity columns")
	}

	counts := mat.NewDense(len(cols), len(s.cells), nil)
	for j, c := range s.cells {
		row := t.Rows[c.src]
		for i, ref := range cols {
			v, err := tables.ParseFloat(row[ref.col])
			if err != nil {
				return errors.Wrapf(err, "cell table row %v, column %v", c.src+1, t.Header[ref.col])
			}
			counts.Set(i, j, v)
		}
	}

	s.counts = counts
	return nil
}

func buildExpression(s *mergeState) error {
	r, c := s.counts.Dims()
	expr := mat.NewDense(r, c, nil)
	expr.Apply(func(i, j int, v float64) float64 { return math.Asinh(v) }, s.counts)
	s.expression = expr
	return nil
}

func (s *mergeState) dropped(join string, before int, after int) {
	// Duplicate keys on the right side can grow the table, that shows up later as duplicate IDs
	if after < before {
		s.report.Dropped[join] += before - after
		s.log.Infof("Join with %v dropped %v of %v cells", join, before-after, before)
	}
}
