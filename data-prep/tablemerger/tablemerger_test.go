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

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const cellsCSV = `ImageNumber,ObjectNumber,Location_Center_X,Location_Center_Y,Parent_Islets,Parent_ExpandedIslets,AreaShape_Area,Neighbors_NumberOfNeighbors_3,Intensity_MeanIntensity_CleanStack_c10,Intensity_MeanIntensity_CleanStack_c2,Intensity_MeanIntensity_CleanStack_c1
1,2,10.5,20.5,0,1,30,2,3.0,2.0,1.0
1,1,11.5,21.5,1,1,42,3,0.5,0,4
2,1,5,5,0,0,12,0,9,9,9
1,3,50,60,0,2,18.0,1,7,7,7
`

const imagesCSV = `ImageNumber,FileName_CleanStack,Metadata_Slide,Width_CleanStack,Height_CleanStack
1,img1_a0_full_clean.tiff,6126,100,120
3,img3_a0_full_clean.tiff,6127,100,100
`

const cellTypesCSV = `id,CellCat,CellType,extra
img1_1,islet,beta,x
img1_2,immune,Tc,y
img2_1,islet,alpha,z
`

const donorsCSV = `case,slide,part,stage
6180,6126,Tail,Non-diabetic
6181,6127,Head,Onset
`

const panelCSV = `MetalTag,Target,shortname,full
In113,Histone H3,H3,1
In115,Insulin,INS,1
La139,Unused,UNU,0
Pr141,Glucagon,GCG,1
`

func parse(csv string) *tables.Table {
	tbl, err := tables.Parse(strings.NewReader(csv), ',')
	if err != nil {
		panic(err)
	}
	return tbl
}

func makeInputs() Inputs {
	return Inputs{
		Cells:         parse(cellsCSV),
		Images:        parse(imagesCSV),
		CellTypes:     parse(cellTypesCSV),
		Donors:        parse(donorsCSV),
		Panel:         parse(panelCSV),
		ChannelMasses: []string{"In113", "In115", "Pr141"},
	}
}

func ExampleMerge() {
	in := makeInputs()
	ds, report, err := Merge(in, &logger.NullLogger{})
	fmt.Println(err)
	fmt.Println(ds.ColNames)
	fmt.Println(ds.RowNames)
	for i := 0; i < 3; i++ {
		fmt.Println(mat.Row(nil, i, ds.Counts))
	}
	fmt.Println(ds.Expression.At(2, 1) == math.Asinh(3))

	c := ds.ColData[0]
	fmt.Println(c.ImageName, c.ImageFullName, c.Slide, c.Width, c.Height, c.PosX, c.ParentIslet, c.Area, c.NbNeighbours)
	fmt.Println(c.CellCat, c.CellType, c.Donor["case"], c.Donor["stage"], ds.DonorColumns)

	fmt.Println(report.InputCells, report.OutputCells, report.Channels, report.Dropped)

	// Output:
	// <nil>
	// [img1_1 img1_2]
	// [H3 INS GCG]
	// [4 1]
	// [0 2]
	// [0.5 3]
	// true
	// img1 img1_a0_full_clean.tiff 6126 100 120 11.5 1 42 3
	// islet beta 6180 Non-diabetic [case part stage]
	// 4 2 3 map[celltypes:1 donors:0 images:1]
}

func Example_mergeDropsCellsOfMissingImage() {
	in := makeInputs()
	ds, _, _ := Merge(in, &logger.NullLogger{})

	imgs := map[string]int{}
	for _, c := range ds.ColData {
		imgs[c.ImageName]++
	}
	fmt.Println(imgs)

	// Output:
	// map[img1:2]
}

func Test_MergeDuplicateCellID(t *testing.T) {
	in := makeInputs()
	in.CellTypes = parse(cellTypesCSV + "img1_2,immune,Th,w\n")

	_, _, err := Merge(in, &logger.NullLogger{})
	if !errors.Is(err, models.ErrDuplicateCellID) {
		t.Fatalf("expected duplicate cell ID error, got %v", err)
	}
	if !strings.Contains(err.Error(), "img1_2") {
		t.Errorf("error should name the duplicate: %v", err)
	}
}

func Test_MergeDuplicateImageRow(t *testing.T) {
	in := makeInputs()
	in.Images = parse(imagesCSV + "1,img1_a0_full_clean.tiff,6126,100,120\n")

	_, _, err := Merge(in, &logger.NullLogger{})
	if !errors.Is(err, models.ErrDuplicateCellID) {
		t.Fatalf("expected duplicate cell ID error, got %v", err)
	}
}

func Test_MergeMissingPanelRow(t *testing.T) {
	in := makeInputs()
	in.ChannelMasses = []string{"In113", "In115", "Yb176"}

	_, _, err := Merge(in, &logger.NullLogger{})
	if !errors.Is(err, models.ErrMissingPanelRow) {
		t.Fatalf("expected missing panel row error, got %v", err)
	}
}

func Test_MergeChannelCountMismatch(t *testing.T) {
	in := makeInputs()
	in.ChannelMasses = []string{"In113", "In115"}

	_, _, err := Merge(in, &logger.NullLogger{})
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func Test_MergeUnstrippedNames(t *testing.T) {
	in := makeInputs()
	in.Images = parse(strings.ReplaceAll(imagesCSV, "img1_a0_full_clean.tiff", "img1.tiff"))
	in.CellTypes = parse(strings.ReplaceAll(cellTypesCSV, "img1_", "img1.tiff_"))

	l := &logger.MemLogger{}
	ds, report, err := Merge(in, l)
	if err != nil {
		t.Fatal(err)
	}
	if report.UnstrippedImageNames != 3 {
		t.Errorf("expected 3 unstripped names (one per joined cell), got %v", report.UnstrippedImageNames)
	}
	if ds.ColNames[0] != "img1.tiff_1" {
		t.Errorf("unexpected cell ID %v", ds.ColNames[0])
	}

	found := false
	for _, line := range l.Lines {
		if strings.HasPrefix(line, "DEBUG: Image file name img1.tiff") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a debug line about the unchanged name, got %v", l.Lines)
	}
}

func Test_MergeNothingLeft(t *testing.T) {
	in := makeInputs()
	in.Donors = parse("slide,case\n9999,1\n")

	_, report, err := Merge(in, &logger.NullLogger{})
	if err == nil || !strings.Contains(err.Error(), "no cells left after \"join donors\"") {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Dropped[JoinDonors] != 2 {
		t.Errorf("expected both remaining cells dropped by donor join, got %v", report.Dropped)
	}
}

func Test_MergeMissingColumn(t *testing.T) {
	in := makeInputs()
	in.Cells = parse(strings.Replace(cellsCSV, "AreaShape_Area", "Area", 1))

	_, _, err := Merge(in, &logger.NullLogger{})
	if err == nil || !strings.Contains(err.Error(), "column AreaShape_Area not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func Test_IntensityColumnOrder(t *testing.T) {
	tbl := parse("Intensity_MeanIntensity_CleanStack_c3,ObjectNumber,Intensity_MeanIntensity_CleanStack_c11,Intensity_MeanIntensity_CleanStack_c1,Intensity_MeanIntensity_CleanStack_c1x\n1,2,3,4,5\n")
	cols, err := intensityColumns(tbl)
	if err != nil {
		t.Fatal(err)
	}

	got := []int{}
	for _, c := range cols {
		got = append(got, c.channel, c.col)
	}
	if fmt.Sprintf("%v", got) != "[1 3 3 0 11 2]" {
		t.Errorf("unexpected order %v", got)
	}
}
