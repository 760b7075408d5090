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
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func ExampleMakeCellID() {
	fmt.Println(MakeCellID("E02", 17))

	// Output:
	// E02_17
}

func ExampleImageCollection_Names() {
	c := ImageCollection{Entries: []ImageEntry{{ID: "E02_a0_full_clean", ImageName: "E02"}, {ID: "E03_a0_full_clean", ImageName: "E03"}}}
	fmt.Println(c.Names(), c.Len())

	// Output:
	// [E02 E03] 2
}

func ExampleRaster_CheckShape() {
	r := NewRaster(3, 2, 2)
	r.Set(1, 2, 1, 7)
	fmt.Println(r.At(1, 2, 1), r.Channels(), r.CheckShape())

	r.Planes[0] = r.Planes[0][1:]
	fmt.Println(r.CheckShape())

	// Output:
	// 7 2 <nil>
	// channel 0 has 5 values, expected 3x2
}

func makeValidDataset() *SingleCellDataset {
	counts := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	expr := mat.NewDense(2, 3, nil)
	expr.Apply(func(i, j int, v float64) float64 { return math.Asinh(v) }, counts)

	return &SingleCellDataset{
		Counts:     counts,
		Expression: expr,
		RowNames:   []string{"CD45", "INS"},
		ColNames:   []string{"E02_1", "E02_2", "E03_1"},
		RowData:    []PanelRow{{MetalTag: "In113", ShortName: "CD45", Full: true}, {MetalTag: "In115", ShortName: "INS", Full: true}},
		ColData: []CellRecord{
			{CellID: "E02_1", ImageNumber: 1, CellNumber: 1, ImageName: "E02"},
			{CellID: "E02_2", ImageNumber: 1, CellNumber: 2, ImageName: "E02"},
			{CellID: "E03_1", ImageNumber: 2, CellNumber: 1, ImageName: "E03"},
		},
	}
}

func Test_ValidateDataset(t *testing.T) {
	if err := makeValidDataset().Validate(); err != nil {
		t.Fatalf("valid dataset failed: %v", err)
	}

	d := makeValidDataset()
	d.ColData[2].CellID = "E02_2"
	d.ColData[2].ImageName = "E02"
	d.ColData[2].CellNumber = 2
	d.ColNames[2] = "E02_2"
	if err := d.Validate(); !errors.Is(err, ErrDuplicateCellID) {
		t.Errorf("expected duplicate cell ID error, got: %v", err)
	}

	d = makeValidDataset()
	d.RowNames = d.RowNames[:1]
	if err := d.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected shape error for row names, got: %v", err)
	}

	d = makeValidDataset()
	d.ColData = d.ColData[:2]
	if err := d.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected shape error for columns, got: %v", err)
	}

	d = makeValidDataset()
	d.ColData[0], d.ColData[1] = d.ColData[1], d.ColData[0]
	d.ColNames[0], d.ColNames[1] = d.ColNames[1], d.ColNames[0]
	if err := d.Validate(); err == nil {
		t.Errorf("expected ordering error")
	}

	d = makeValidDataset()
	d.Expression.Set(1, 1, 0)
	if err := d.Validate(); err == nil {
		t.Errorf("expected expression mismatch error")
	}

	d = makeValidDataset()
	d.RowData[1].ShortName = "CD45"
	d.RowNames[1] = "CD45"
	if err := d.Validate(); !errors.Is(err, ErrDuplicateChannel) {
		t.Errorf("expected duplicate channel error, got: %v", err)
	}

	d = makeValidDataset()
	d.Counts = nil
	if err := d.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected missing assay error, got: %v", err)
	}
}

func Test_ValidateCollections(t *testing.T) {
	collection := func(names []string, channels int) *ImageCollection {
		c := &ImageCollection{}
		for _, n := range names {
			c.Entries = append(c.Entries, ImageEntry{ID: n, ImageName: n, Raster: NewRaster(2, 2, channels)})
		}
		return c
	}

	images := collection([]string{"E02", "E03"}, 2)
	images.ChannelNames = []string{"CD45", "INS"}

	if err := ValidateCollections(images, collection([]string{"E02", "E03"}, 1)); err != nil {
		t.Errorf("expected valid collections, got: %v", err)
	}
	if err := ValidateCollections(images, collection([]string{"E02"}, 1)); !errors.Is(err, ErrNameMismatch) {
		t.Errorf("expected length mismatch, got: %v", err)
	}
	if err := ValidateCollections(images, collection([]string{"E03", "E02"}, 1)); !errors.Is(err, ErrNameMismatch) {
		t.Errorf("expected order mismatch, got: %v", err)
	}
	if err := ValidateCollections(images, collection([]string{"E02", "E03"}, 2)); !errors.Is(err, ErrChannelCount) {
		t.Errorf("expected multi-channel mask error, got: %v", err)
	}

	images.ChannelNames = []string{"CD45"}
	if err := ValidateCollections(images, collection([]string{"E02", "E03"}, 1)); !errors.Is(err, ErrChannelCount) {
		t.Errorf("expected channel name count error, got: %v", err)
	}

	images.ChannelNames = []string{"CD45", "INS"}
	masks := collection([]string{"E02", "E03"}, 1)
	masks.Entries[1].Raster = NewRaster(3, 2, 1)
	if err := ValidateCollections(images, masks); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected size mismatch, got: %v", err)
	}
}
