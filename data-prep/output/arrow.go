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

// Persisting a prepared dataset. Assays, cell and panel metadata and the image collections are
// written as Arrow IPC streams, next to a JSON summary, through a FileAccess so the same code
// writes to a local directory or an S3 bucket.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/core/utils"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Output file paths, relative to the dataset root
const (
	CountsFile     = "sce/counts.arrow"
	ExpressionFile = "sce/expression.arrow"
	ColDataFile    = "sce/coldata.arrow"
	RowDataFile    = "sce/rowdata.arrow"
	ImagesFile     = "images.arrow"
	MasksFile      = "masks.arrow"
	SummaryFile    = "summary.json"
)

// Schema metadata keys
const (
	MetaAssay        = "assay"
	MetaChannelNames = "channel_names" // JSON array
	MetaCollection   = "collection"
)

type Writer struct {
	files       fileaccess.FileAccess
	bucket      string
	root        string
	datasetName string
	mem         memory.Allocator
	log         logger.ILogger

	written []string
}

// NewWriter - writes under bucket/outputPath/datasetName. For local output bucket is the
// directory outputPath is relative to
func NewWriter(files fileaccess.FileAccess, bucket string, outputPath string, datasetName string, log logger.ILogger) *Writer {
	return &Writer{
		files:       files,
		bucket:      bucket,
		root:        path.Join(outputPath, fileaccess.MakeValidObjectName(datasetName)),
		datasetName: datasetName,
		mem:         memory.NewGoAllocator(),
		log:         log,
	}
}

// Root - the dataset's directory (or key prefix)
func (w *Writer) Root() string {
	return w.root
}

// Written - dataset-relative paths written so far, in write order
func (w *Writer) Written() []string {
	return w.written
}

// WriteDataset - writes both assays and both metadata tables
func (w *Writer) WriteDataset(ds *models.SingleCellDataset) error {
	if err := w.writeRecord(CountsFile, assayRecord(w.mem, "counts", ds.RowNames, ds.Counts)); err != nil {
		return err
	}
	if err := w.writeRecord(ExpressionFile, assayRecord(w.mem, "expression", ds.RowNames, ds.Expression)); err != nil {
		return err
	}
	if err := w.writeRecord(ColDataFile, colDataRecord(w.mem, ds)); err != nil {
		return err
	}
	return w.writeRecord(RowDataFile, rowDataRecord(w.mem, ds.RowData))
}

// WriteCollections - writes images and masks, one record per raster so no list column ever holds
// more than a single raster's pixels
func (w *Writer) WriteCollections(images *models.ImageCollection, masks *models.ImageCollection) error {
	if err := w.writeCollection(ImagesFile, "images", images); err != nil {
		return err
	}
	return w.writeCollection(MasksFile, "masks", masks)
}

func (w *Writer) writeCollection(relPath string, name string, c *models.ImageCollection) error {
	schema, err := collectionSchema(name, c)
	if err != nil {
		return err
	}

	return w.writeStream(relPath, schema, len(c.Entries), func(i int) (arrow.Record, error) {
		return collectionRecord(w.mem, schema, c.Entries[i])
	})
}

func (w *Writer) writeRecord(relPath string, rec arrow.Record) error {
	return w.writeStream(relPath, rec.Schema(), 1, func(int) (arrow.Record, error) {
		return rec, nil
	})
}

// writeStream - encodes count records from build into one IPC stream, releasing each once written
func (w *Writer) writeStream(relPath string, schema *arrow.Schema, count int, build func(i int) (arrow.Record, error)) error {
	buf := &bytes.Buffer{}
	iw := ipc.NewWriter(buf, ipc.WithSchema(schema), ipc.WithAllocator(w.mem))

	for i := 0; i < count; i++ {
		rec, err := build(i)
		if err != nil {
			iw.Close()
			return errors.Wrapf(err, "failed to build %v record %v", relPath, i)
		}
		err = iw.Write(rec)
		rec.Release()
		if err != nil {
			iw.Close()
			return errors.Wrapf(err, "failed to encode %v", relPath)
		}
	}
	if err := iw.Close(); err != nil {
		return errors.Wrapf(err, "failed to encode %v", relPath)
	}

	return w.writeBytes(relPath, buf.Bytes())
}

func (w *Writer) writeBytes(relPath string, data []byte) error {
	savePath := path.Join(w.root, relPath)
	if err := w.files.WriteObject(w.bucket, savePath, data); err != nil {
		return errors.Wrapf(err, "failed to write %v", savePath)
	}

	w.log.Infof("Wrote %v (%v)", savePath, humanize.Bytes(uint64(len(data))))
	w.written = append(w.written, relPath)
	return nil
}

// assayRecord - one row per channel, the values list running over cells in column order
func assayRecord(mem memory.Allocator, assay string, rowNames []string, m *mat.Dense) arrow.Record {
	md := arrow.NewMetadata([]string{MetaAssay}, []string{assay})
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "channel", Type: arrow.BinaryTypes.String},
		{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	}, &md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	names := b.Field(0).(*array.StringBuilder)
	values := b.Field(1).(*array.ListBuilder)
	valueBuilder := values.ValueBuilder().(*array.Float64Builder)

	for i, name := range rowNames {
		names.Append(name)
		values.Append(true)
		valueBuilder.AppendValues(mat.Row(nil, i, m), nil)
	}

	return b.NewRecord()
}

func colDataRecord(mem memory.Allocator, ds *models.SingleCellDataset) arrow.Record {
	fields := []arrow.Field{
		{Name: "cell_id", Type: arrow.BinaryTypes.String},
		{Name: "image_number", Type: arrow.PrimitiveTypes.Int64},
		{Name: "cell_number", Type: arrow.PrimitiveTypes.Int64},
		{Name: "pos_x", Type: arrow.PrimitiveTypes.Float64},
		{Name: "pos_y", Type: arrow.PrimitiveTypes.Float64},
		{Name: "parent_islet", Type: arrow.PrimitiveTypes.Int64},
		{Name: "closest_islet", Type: arrow.PrimitiveTypes.Int64},
		{Name: "area", Type: arrow.PrimitiveTypes.Float64},
		{Name: "nb_neighbours", Type: arrow.PrimitiveTypes.Int64},
		{Name: "image_name", Type: arrow.BinaryTypes.String},
		{Name: "image_full_name", Type: arrow.BinaryTypes.String},
		{Name: "slide", Type: arrow.BinaryTypes.String},
		{Name: "width_px", Type: arrow.PrimitiveTypes.Int64},
		{Name: "height_px", Type: arrow.PrimitiveTypes.Int64},
		{Name: "cell_cat", Type: arrow.BinaryTypes.String},
		{Name: "cell_type", Type: arrow.BinaryTypes.String},
	}
	fixed := len(fields)
	for _, col := range ds.DonorColumns {
		fields = append(fields, arrow.Field{Name: col, Type: arrow.BinaryTypes.String})
	}

	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	for _, c := range ds.ColData {
		b.Field(0).(*array.StringBuilder).Append(c.CellID)
		b.Field(1).(*array.Int64Builder).Append(int64(c.ImageNumber))
		b.Field(2).(*array.Int64Builder).Append(int64(c.CellNumber))
		b.Field(3).(*array.Float64Builder).Append(c.PosX)
		b.Field(4).(*array.Float64Builder).Append(c.PosY)
		b.Field(5).(*array.Int64Builder).Append(int64(c.ParentIslet))
		b.Field(6).(*array.Int64Builder).Append(int64(c.ClosestIslet))
		b.Field(7).(*array.Float64Builder).Append(c.Area)
		b.Field(8).(*array.Int64Builder).Append(int64(c.NbNeighbours))
		b.Field(9).(*array.StringBuilder).Append(c.ImageName)
		b.Field(10).(*array.StringBuilder).Append(c.ImageFullName)
		b.Field(11).(*array.StringBuilder).Append(c.Slide)
		b.Field(12).(*array.Int64Builder).Append(int64(c.Width))
		b.Field(13).(*array.Int64Builder).Append(int64(c.Height))
		b.Field(14).(*array.StringBuilder).Append(c.CellCat)
		b.Field(15).(*array.StringBuilder).Append(c.CellType)

		for d, col := range ds.DonorColumns {
			b.Field(fixed + d).(*array.StringBuilder).Append(c.Donor[col])
		}
	}

	return b.NewRecord()
}

func rowDataRecord(mem memory.Allocator, rows []models.PanelRow) arrow.Record {
	fields := []arrow.Field{
		{Name: "metal_tag", Type: arrow.BinaryTypes.String},
		{Name: "short_name", Type: arrow.BinaryTypes.String},
		{Name: "full", Type: arrow.FixedWidthTypes.Boolean},
	}

	attrs := []string{}
	if len(rows) > 0 {
		attrs = utils.GetSortedMapKeys(rows[0].Attributes)
	}
	for _, a := range attrs {
		fields = append(fields, arrow.Field{Name: a, Type: arrow.BinaryTypes.String})
	}

	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	for _, r := range rows {
		b.Field(0).(*array.StringBuilder).Append(r.MetalTag)
		b.Field(1).(*array.StringBuilder).Append(r.ShortName)
		b.Field(2).(*array.BooleanBuilder).Append(r.Full)
		for a, attr := range attrs {
			b.Field(3 + a).(*array.StringBuilder).Append(r.Attributes[attr])
		}
	}

	return b.NewRecord()
}

func collectionSchema(name string, c *models.ImageCollection) (*arrow.Schema, error) {
	channelNames := c.ChannelNames
	if channelNames == nil {
		channelNames = []string{}
	}
	namesJSON, err := json.Marshal(channelNames)
	if err != nil {
		return nil, err
	}

	md := arrow.NewMetadata([]string{MetaCollection, MetaChannelNames}, []string{name, string(namesJSON)})
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "image_name", Type: arrow.BinaryTypes.String},
		{Name: "width", Type: arrow.PrimitiveTypes.Int64},
		{Name: "height", Type: arrow.PrimitiveTypes.Int64},
		{Name: "channels", Type: arrow.PrimitiveTypes.Int64},
		{Name: "pixels", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	}, &md), nil
}

// collectionRecord - a single row for one raster, pixels holding every plane back to back
func collectionRecord(mem memory.Allocator, schema *arrow.Schema, e models.ImageEntry) (arrow.Record, error) {
	r := e.Raster
	if n := int64(r.Width) * int64(r.Height) * int64(r.Channels()); n > math.MaxInt32 {
		return nil, fmt.Errorf("%v has %v pixel values, more than one list can hold", e.ID, n)
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.StringBuilder).Append(e.ID)
	b.Field(1).(*array.StringBuilder).Append(e.ImageName)
	b.Field(2).(*array.Int64Builder).Append(int64(r.Width))
	b.Field(3).(*array.Int64Builder).Append(int64(r.Height))
	b.Field(4).(*array.Int64Builder).Append(int64(r.Channels()))

	pixels := b.Field(5).(*array.ListBuilder)
	pixelValues := pixels.ValueBuilder().(*array.Float32Builder)
	pixels.Append(true)
	for _, plane := range r.Planes {
		pixelValues.AppendValues(plane, nil)
	}

	return b.NewRecord(), nil
}
