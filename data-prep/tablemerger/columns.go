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

package tablemerger

import "regexp"

// Cell table (CellProfiler cell export)
const (
	colImageNumber    = "ImageNumber"
	colObjectNumber   = "ObjectNumber"
	colPosX           = "Location_Center_X"
	colPosY           = "Location_Center_Y"
	colParentIslet    = "Parent_Islets"
	colClosestIslet   = "Parent_ExpandedIslets"
	colArea           = "AreaShape_Area"
	colNbNeighbours   = "Neighbors_NumberOfNeighbors_3"
	colImageFileName  = "FileName_CleanStack"
	colImageSlide     = "Metadata_Slide"
	colImageWidth     = "Width_CleanStack"
	colImageHeight    = "Height_CleanStack"
	colCellTypeID     = "id"
	colCellCat        = "CellCat"
	colCellType       = "CellType"
	colDonorSlide     = "slide"
	intensityColGroup = 1
)

// Mean intensity per channel, the channel number being the 1-based plane in the image stack
var intensityColumn = regexp.MustCompile(`^Intensity_MeanIntensity_CleanStack_c(\d+)$`)

// Join names, as used in MergeReport.Dropped
const (
	JoinImages    = "images"
	JoinCellTypes = "celltypes"
	JoinDonors    = "donors"
)
