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

package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/core/timestamper"
	"github.com/imcdata/imcprep/data-prep/config"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/output"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/image/tiff"
)

func writeFile(t *testing.T, filePath string, data []byte) {
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data string) []byte {
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write([]byte(data)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tiffBytes(t *testing.T, values ...uint16) []byte {
	img := image.NewGray16(image.Rect(0, 0, 2, 2))
	for i, v := range values {
		img.SetGray16(i%2, i/2, color.Gray16{Y: v})
	}
	buf := &bytes.Buffer{}
	if err := tiff.Encode(buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// makeSources - a small published dataset on local disk: img1 and img2 have cells, but only img1
// is in the image table and has a stack. One mask has no image
func makeSources(t *testing.T) config.Sources {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "cells.csv.gz"), gzipBytes(t, `ImageNumber,ObjectNumber,Location_Center_X,Location_Center_Y,Parent_Islets,Parent_ExpandedIslets,AreaShape_Area,Neighbors_NumberOfNeighbors_3,Intensity_MeanIntensity_CleanStack_c1
1,2,1.5,0.5,0,1,4,1,0.25
1,1,0.5,0.5,1,1,3,1,2
2,1,1,1,0,0,2,0,5
`))

	writeFile(t, filepath.Join(dir, "tables.zip"), zipBytes(t, map[string][]byte{
		"image.csv":     []byte("ImageNumber,FileName_CleanStack,Metadata_Slide,Width_CleanStack,Height_CleanStack\n1,img1_a0_full_clean.tiff,6126,2,2\n"),
		"celltypes.csv": []byte("id,CellCat,CellType\nimg1_1,islet,beta\nimg1_2,immune,Tc\nimg2_1,islet,alpha\n"),
		"donors.csv":    []byte("slide,case,stage\n6126,6180,Non-diabetic\n"),
	}))

	writeFile(t, filepath.Join(dir, "panel.csv"), []byte("MetalTag,Target,shortname,full\nIn115,Insulin,INS,1\nLa139,Unused,UNU,0\n"))
	writeFile(t, filepath.Join(dir, "channel_mass.csv"), []byte("In115\n"))

	writeFile(t, filepath.Join(dir, "images.zip"), zipBytes(t, map[string][]byte{
		"img/img1_a0_full_clean.tiff": tiffBytes(t, 10, 20, 30, 40),
	}))
	writeFile(t, filepath.Join(dir, "masks.zip"), zipBytes(t, map[string][]byte{
		"mask/img1_a0_full_mask.tiff": tiffBytes(t, 1, 2, 0, 0),
		"mask/img9_a0_full_mask.tiff": tiffBytes(t, 1, 1, 1, 1),
	}))

	tables := filepath.Join(dir, "tables.zip")
	return config.Sources{
		Cells:        config.TableSource{URL: filepath.Join(dir, "cells.csv.gz")},
		Images:       config.TableSource{URL: tables, Member: "image.csv"},
		CellTypes:    config.TableSource{URL: tables, Member: "celltypes.csv"},
		Donors:       config.TableSource{URL: tables, Member: "donors.csv"},
		Panel:        config.TableSource{URL: filepath.Join(dir, "panel.csv")},
		ChannelMass:  config.TableSource{URL: filepath.Join(dir, "channel_mass.csv")},
		ImageArchive: filepath.Join(dir, "images.zip"),
		MaskArchive:  filepath.Join(dir, "masks.zip"),
	}
}

type testRun struct {
	cfg     config.PrepConfig
	deps    Deps
	outDir  string
	catalog []bson.M
}

func makeRun(t *testing.T) *testRun {
	dir := t.TempDir()
	r := &testRun{outDir: filepath.Join(dir, "out")}
	r.cfg = config.PrepConfig{
		DatasetName:     "islets",
		WorkingDir:      filepath.Join(dir, "work"),
		OutputPath:      "prepared",
		SQLitePath:      filepath.Join(dir, "islets.db"),
		MetricsTextfile: filepath.Join(dir, "imcprep.prom"),
		MongoURI:        "mongodb://catalog",
		Sources:         makeSources(t),
	}
	r.deps = Deps{
		Files:   &fileaccess.FSAccess{},
		Bucket:  r.outDir,
		Metrics: NewMetrics(),
		Clock:   &timestamper.FixedTimeStamper{Time: time.Unix(1700000000, 0)},
		Catalog: func(ctx context.Context, cfg config.PrepConfig, doc bson.M, log logger.ILogger) error {
			r.catalog = append(r.catalog, doc)
			return nil
		},
	}
	return r
}

func checkEmptyDir(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) > 0 {
		t.Errorf("expected %v to be empty, found %v entries", dir, len(entries))
	}
}

func Test_RunEndToEnd(t *testing.T) {
	r := makeRun(t)

	summary, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if err != nil {
		t.Fatal(err)
	}

	if summary.Cells != 2 || summary.Channels != 1 || summary.Images != 1 || summary.Masks != 1 || summary.DroppedMasks != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.DroppedCells["images"] != 1 || summary.DroppedCells["celltypes"] != 0 {
		t.Errorf("expected img2's cell dropped by the image join: %v", summary.DroppedCells)
	}
	if strings.Join(summary.ChannelNames, ",") != "INS" || strings.Join(summary.ImageNames, ",") != "img1" {
		t.Errorf("unexpected names %v %v", summary.ChannelNames, summary.ImageNames)
	}
	if summary.CreatedUnixSec != 1700000000 || len(summary.Files) != 6 {
		t.Errorf("unexpected summary files %v", summary.Files)
	}

	for _, f := range []string{output.CountsFile, output.ExpressionFile, output.ColDataFile, output.RowDataFile, output.ImagesFile, output.MasksFile, output.SummaryFile} {
		if _, err := os.Stat(filepath.Join(r.outDir, "prepared", "islets", f)); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}

	// Downloads are all gone
	checkEmptyDir(t, r.cfg.WorkingDir)

	if _, err := os.Stat(r.cfg.SQLitePath); err != nil {
		t.Errorf("missing SQLite export: %v", err)
	}

	if len(r.catalog) != 1 || r.catalog[0]["location"] != path.Join(r.outDir, "prepared/islets") || r.catalog[0]["cells"] != 2 {
		t.Errorf("unexpected catalog entries %v", r.catalog)
	}

	m := r.deps.Metrics
	if testutil.ToFloat64(m.Cells) != 2 || testutil.ToFloat64(m.Images) != 1 || testutil.ToFloat64(m.DroppedMasks) != 1 {
		t.Errorf("unexpected metrics")
	}
	if testutil.ToFloat64(m.DroppedCells.WithLabelValues("images")) != 1 || testutil.ToFloat64(m.LastSuccess) != 1700000000 {
		t.Errorf("unexpected drop/success metrics")
	}

	prom, err := os.ReadFile(r.cfg.MetricsTextfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prom), "imcprep_cells 2") || !strings.Contains(string(prom), `imcprep_dropped_cells_total{join="images"} 1`) {
		t.Errorf("unexpected textfile:\n%v", string(prom))
	}
}

func Test_RunFailsBeforeWriting(t *testing.T) {
	r := makeRun(t)

	masses := filepath.Join(t.TempDir(), "channel_mass.csv")
	writeFile(t, masses, []byte("In115\nYb176\n"))
	r.cfg.Sources.ChannelMass = config.TableSource{URL: masses}

	_, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if !errors.Is(err, models.ErrMissingPanelRow) {
		t.Fatalf("expected missing panel row, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "stage \"merge tables\" failed") {
		t.Errorf("unexpected error %v", err)
	}

	if _, err := os.Stat(r.outDir); !os.IsNotExist(err) {
		t.Errorf("nothing should be written on failure")
	}
	if len(r.catalog) != 0 {
		t.Errorf("nothing should be catalogued on failure")
	}
	checkEmptyDir(t, r.cfg.WorkingDir)

	if testutil.ToFloat64(r.deps.Metrics.LastSuccess) != 0 {
		t.Errorf("failed run recorded as success")
	}
	if _, err := os.Stat(r.cfg.MetricsTextfile); err != nil {
		t.Errorf("metrics should still be written: %v", err)
	}
}

func Test_RunMissingArchive(t *testing.T) {
	r := makeRun(t)
	r.cfg.Sources.MaskArchive = filepath.Join(t.TempDir(), "nope.zip")

	_, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if err == nil || !strings.HasPrefix(err.Error(), "stage \"assemble images\" failed") {
		t.Fatalf("unexpected error %v", err)
	}
	checkEmptyDir(t, r.cfg.WorkingDir)
}

func Test_CrossCheckChannels(t *testing.T) {
	s := &runState{
		log: &logger.NullLogger{},
		dataset: &models.SingleCellDataset{
			RowNames: []string{"H3", "INS"},
		},
		imageCollection: &models.ImageCollection{ChannelNames: []string{"H3", "GCG"}},
		maskCollection:  &models.ImageCollection{},
	}

	err := checkChannels(s)
	if !errors.Is(err, models.ErrShapeMismatch) || !strings.Contains(err.Error(), "channel 1 is INS in the dataset but GCG in the images") {
		t.Errorf("unexpected error %v", err)
	}

	s.imageCollection.ChannelNames = []string{"H3", "INS"}
	if err := checkChannels(s); err != nil {
		t.Error(err)
	}
}

// failingFiles - local output that fails writing any path ending in failOn
type failingFiles struct {
	fileaccess.FSAccess
	failOn string
}

func (f *failingFiles) WriteObject(rootPath string, filePath string, data []byte) error {
	if strings.HasSuffix(filePath, f.failOn) {
		return errors.New("disk full")
	}
	return f.FSAccess.WriteObject(rootPath, filePath, data)
}

func listOutputs(t *testing.T, dir string) []string {
	fs := &fileaccess.FSAccess{}
	files, err := fs.ListObjects(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func Test_RunRollsBackPartialWrite(t *testing.T) {
	r := makeRun(t)
	r.deps.Files = &failingFiles{failOn: output.MasksFile}

	_, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if err == nil || !strings.HasPrefix(err.Error(), "stage \"write outputs\" failed") || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("unexpected error %v", err)
	}

	if left := listOutputs(t, r.outDir); len(left) != 0 {
		t.Errorf("expected written files to be rolled back, found %v", left)
	}
	if _, err := os.Stat(filepath.Join(r.outDir, "prepared")); !os.IsNotExist(err) {
		t.Errorf("empty output dirs should be removed too: %v", err)
	}
	if _, err := os.Stat(r.cfg.SQLitePath); !os.IsNotExist(err) {
		t.Errorf("SQLite export should not have run")
	}
	if len(r.catalog) != 0 {
		t.Errorf("nothing should be catalogued on failure")
	}
}

func Test_RunRollsBackOnCatalogFailure(t *testing.T) {
	r := makeRun(t)
	r.deps.Catalog = func(ctx context.Context, cfg config.PrepConfig, doc bson.M, log logger.ILogger) error {
		return errors.New("server selection timeout")
	}

	_, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if err == nil || !strings.HasPrefix(err.Error(), "stage \"catalog\" failed") {
		t.Fatalf("unexpected error %v", err)
	}

	if left := listOutputs(t, r.outDir); len(left) != 0 {
		t.Errorf("expected outputs to be rolled back, found %v", left)
	}
	if _, err := os.Stat(r.cfg.SQLitePath); !os.IsNotExist(err) {
		t.Errorf("SQLite export should be removed: %v", err)
	}
}

func Test_RunReplacesPreviousOutput(t *testing.T) {
	r := makeRun(t)

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{}); err != nil {
			t.Fatalf("run %v: %v", i, err)
		}
	}
	if got := listOutputs(t, r.outDir); len(got) != 7 {
		t.Errorf("expected the 7 outputs of one run, got %v", got)
	}

	// A file the previous run didn't write means the location isn't ours to clear
	notes := filepath.Join(r.outDir, "prepared", "islets", "notes.txt")
	writeFile(t, notes, []byte("keep me"))

	_, err := Run(context.Background(), r.cfg, r.deps, &logger.NullLogger{})
	if !errors.Is(err, output.ErrForeignOutput) || !strings.HasPrefix(err.Error(), "stage \"write outputs\" failed") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Errorf("foreign file must be left alone: %v", err)
	}
	if got := listOutputs(t, r.outDir); len(got) != 8 {
		t.Errorf("previous outputs must be untouched when refusing, got %v", got)
	}
}
