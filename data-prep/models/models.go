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

// In-memory structures produced by a prep run. Everything here is built once by the table
// merger or the image assembler and not modified afterwards.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CellRecord - one segmented cell, annotated with its image, cell type and donor
type CellRecord struct {
	CellID        string // "{ImageName}_{CellNumber}", unique over the whole table
	ImageNumber   int
	CellNumber    int
	PosX          float64
	PosY          float64
	ParentIslet   int
	ClosestIslet  int
	Area          float64
	NbNeighbours  int
	ImageName     string
	ImageFullName string
	Slide         string
	Width         int
	Height        int
	CellCat       string
	CellType      string
	Donor         map[string]string
}

// ImageRecord - one source image row, only used as a join target for cells
type ImageRecord struct {
	ImageNumber int
	FileName    string
	Slide       string
	Width       int
	Height      int
}

// PanelRow - one antibody/metal channel, in physical stack order
type PanelRow struct {
	MetalTag   string
	ShortName  string
	Full       bool
	Attributes map[string]string // Any other panel columns, untouched
}

// MakeCellID - the composite cell identifier used as the global join key
func MakeCellID(imageName string, cellNumber int) string {
	return fmt.Sprintf("%v_%v", imageName, cellNumber)
}

// SingleCellDataset - channels x cells assays with their row (panel) and column (cell) metadata
type SingleCellDataset struct {
	Counts     *mat.Dense
	Expression *mat.Dense

	RowNames []string
	ColNames []string

	RowData []PanelRow
	ColData []CellRecord

	// Donor attribute names in their source column order, for writers that need a fixed order
	DonorColumns []string
}
