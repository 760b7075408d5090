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

// The prep run from start to finish: fetch and merge the tables, fetch and assemble the rasters,
// check the two halves agree, then persist. Stages run strictly in order and nothing is written
// until everything has been built and validated.
package pipeline

import (
	"context"
	"os"
	"path"

	"github.com/imcdata/imcprep/core/downloader"
	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/core/mongoDBConnection"
	"github.com/imcdata/imcprep/core/timestamper"
	"github.com/imcdata/imcprep/core/utils"
	"github.com/imcdata/imcprep/data-prep/acquisition"
	"github.com/imcdata/imcprep/data-prep/config"
	"github.com/imcdata/imcprep/data-prep/imageassembler"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/output"
	"github.com/imcdata/imcprep/data-prep/tablemerger"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/imcdata/imcprep/data-prep/tiffstack"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// CatalogFunc - records a finished dataset somewhere. The default writes to Mongo
type CatalogFunc func(ctx context.Context, cfg config.PrepConfig, doc bson.M, log logger.ILogger) error

// Deps - everything the run talks to. Zero values get defaults
type Deps struct {
	// Where outputs go. Bucket is the S3 bucket, or the local directory OutputPath is relative to
	Files  fileaccess.FileAccess
	Bucket string

	Downloader *downloader.Downloader
	Decode     tiffstack.Decoder
	Metrics    *Metrics
	Catalog    CatalogFunc
	Clock      timestamper.ITimeStamper
}

type runState struct {
	cfg  config.PrepConfig
	deps Deps
	log  logger.ILogger

	cells     *tables.Table
	images    *tables.Table
	cellTypes *tables.Table
	donors    *tables.Table
	panel     *tables.Table
	masses    []string

	dataset     *models.SingleCellDataset
	mergeReport tablemerger.MergeReport

	imageCollection *models.ImageCollection
	maskCollection  *models.ImageCollection
	assembleReport  imageassembler.AssembleReport

	writer        *output.Writer
	summary       output.Summary
	sqliteStarted bool
}

type stage struct {
	name string
	run  func(ctx context.Context, s *runState) error
}

var stages = []stage{
	{"acquire tables", acquireTables},
	{"merge tables", mergeTables},
	{"assemble images", assembleImages},
	{"cross-check", crossCheck},
	{"write outputs", writeOutputs},
	{"export sqlite", exportSQLite},
	{"catalog", catalog},
}

// Run - executes a prep run, returning the summary of what was written
func Run(ctx context.Context, cfg config.PrepConfig, deps Deps, log logger.ILogger) (output.Summary, error) {
	if deps.Files == nil {
		deps.Files = &fileaccess.FSAccess{}
	}
	if deps.Downloader == nil {
		deps.Downloader = downloader.NewDownloader(nil, log)
	}
	if deps.Decode == nil {
		deps.Decode = tiffstack.ReadFile
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Catalog == nil {
		deps.Catalog = mongoCatalog
	}
	if deps.Clock == nil {
		deps.Clock = &timestamper.SystemTimeStamper{}
	}

	s := &runState{cfg: cfg, deps: deps, log: log}

	var runErr error
	for _, st := range stages {
		log.Infof("----- %v -----", st.name)
		start := deps.Clock.GetTimeNow()
		err := st.run(ctx, s)
		deps.Metrics.StageSeconds.WithLabelValues(st.name).Set(deps.Clock.GetTimeNow().Sub(start).Seconds())

		if err != nil {
			runErr = errors.Wrapf(err, "stage \"%v\" failed", st.name)
			break
		}
	}

	if runErr == nil {
		s.recordMetrics()
	} else {
		s.rollback()
	}

	if len(cfg.MetricsTextfile) > 0 {
		if err := deps.Metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Errorf("Failed to write metrics to %v: %v", cfg.MetricsTextfile, err)
		}
	}

	return s.summary, runErr
}

func acquireTables(ctx context.Context, s *runState) error {
	src := s.cfg.Sources
	return acquisition.Run(ctx, s.cfg.WorkingDir, s.deps.Downloader, s.log, func(ctx context.Context, a *acquisition.Session) error {
		reads := []struct {
			name string
			src  config.TableSource
			dest **tables.Table
		}{
			{"cells", src.Cells, &s.cells},
			{"images", src.Images, &s.images},
			{"cell types", src.CellTypes, &s.cellTypes},
			{"donors", src.Donors, &s.donors},
			{"panel", src.Panel, &s.panel},
		}

		for _, r := range reads {
			t, err := a.ReadTable(ctx, r.src)
			if err != nil {
				return errors.Wrapf(err, "%v table", r.name)
			}
			*r.dest = t
		}

		var err error
		s.masses, err = a.ReadChannelMasses(ctx, src.ChannelMass)
		return err
	})
}

func mergeTables(ctx context.Context, s *runState) error {
	ds, report, err := tablemerger.Merge(tablemerger.Inputs{
		Cells:         s.cells,
		Images:        s.images,
		CellTypes:     s.cellTypes,
		Donors:        s.donors,
		Panel:         s.panel,
		ChannelMasses: s.masses,
	}, s.log)

	s.mergeReport = report
	if err != nil {
		return err
	}

	s.log.Infof("Merged %v of %v cells, %v channels", report.OutputCells, report.InputCells, report.Channels)
	s.dataset = ds

	// Raw tables aren't needed any more and the cell table can be large
	s.cells, s.images, s.cellTypes, s.donors = nil, nil, nil, nil
	return nil
}

func assembleImages(ctx context.Context, s *runState) error {
	return acquisition.Run(ctx, s.cfg.WorkingDir, s.deps.Downloader, s.log, func(ctx context.Context, a *acquisition.Session) error {
		return a.WithRasterDir(ctx, s.cfg.Sources.ImageArchive, func(imageDir string) error {
			return a.WithRasterDir(ctx, s.cfg.Sources.MaskArchive, func(maskDir string) error {
				images, masks, report, err := imageassembler.Assemble(imageassembler.Inputs{
					Files:         &fileaccess.FSAccess{},
					ImageDir:      imageDir,
					MaskDir:       maskDir,
					ImagePattern:  s.cfg.ImagePattern,
					MaskPattern:   s.cfg.MaskPattern,
					Panel:         s.panel,
					ChannelMasses: s.masses,
					Decode:        s.deps.Decode,
				}, s.log)

				s.assembleReport = report
				if err != nil {
					return err
				}

				s.log.Infof("Assembled %v images and masks (%v masks dropped)", images.Len(), report.DroppedMasks)
				s.imageCollection = images
				s.maskCollection = masks
				return nil
			})
		})
	})
}

// crossCheck - the cell table and image collection were built independently, make sure they
// describe the same channels, and report images and cells that only one side knows about
func crossCheck(ctx context.Context, s *runState) error {
	if err := s.dataset.Validate(); err != nil {
		return err
	}
	if err := models.ValidateCollections(s.imageCollection, s.maskCollection); err != nil {
		return err
	}
	if err := checkChannels(s); err != nil {
		return err
	}

	reportUnmatchedImages(s)
	return nil
}

func checkChannels(s *runState) error {
	channels := s.imageCollection.ChannelNames
	if len(channels) != len(s.dataset.RowNames) {
		return errors.Wrapf(models.ErrShapeMismatch, "dataset has %v channels, images have %v", len(s.dataset.RowNames), len(channels))
	}
	for i := range channels {
		if channels[i] != s.dataset.RowNames[i] {
			return errors.Wrapf(models.ErrShapeMismatch, "channel %v is %v in the dataset but %v in the images", i, s.dataset.RowNames[i], channels[i])
		}
	}
	return nil
}

func reportUnmatchedImages(s *runState) {
	imageNames := utils.SetFromSlice(s.imageCollection.Names())
	cellsPerImage := map[string]int{}
	for _, c := range s.dataset.ColData {
		cellsPerImage[c.ImageName]++
	}

	for _, name := range utils.GetSortedMapKeys(cellsPerImage) {
		if !imageNames[name] {
			s.log.Infof("Image %v has %v cells but no image stack", name, cellsPerImage[name])
		}
	}
	for _, name := range s.imageCollection.Names() {
		if cellsPerImage[name] <= 0 {
			s.log.Infof("Image stack %v has no cells in the cell table", name)
		}
	}
}

func writeOutputs(ctx context.Context, s *runState) error {
	s.writer = output.NewWriter(s.deps.Files, s.deps.Bucket, s.cfg.OutputPath, s.cfg.DatasetName, s.log)
	if err := s.writer.ClearPrevious(); err != nil {
		return err
	}

	if err := s.writer.WriteDataset(s.dataset); err != nil {
		return err
	}
	if err := s.writer.WriteCollections(s.imageCollection, s.maskCollection); err != nil {
		return err
	}

	summary, err := s.writer.WriteSummary(output.Summary{
		DatasetName:  s.cfg.DatasetName,
		Cells:        len(s.dataset.ColData),
		Channels:     len(s.dataset.RowData),
		Images:       s.imageCollection.Len(),
		Masks:        s.maskCollection.Len(),
		ChannelNames: s.dataset.RowNames,
		ImageNames:   s.imageCollection.Names(),
		DonorColumns: s.dataset.DonorColumns,
		DroppedCells: s.mergeReport.Dropped,
		DroppedMasks: s.assembleReport.DroppedMasks,
	}, s.deps.Clock.GetTimeNow())

	s.summary = summary
	return err
}

func exportSQLite(ctx context.Context, s *runState) error {
	if len(s.cfg.SQLitePath) <= 0 {
		s.log.Debugf("No SQLite path configured, skipping export")
		return nil
	}

	s.sqliteStarted = true
	if err := output.ExportSQLite(ctx, s.cfg.SQLitePath, s.dataset); err != nil {
		return err
	}
	s.log.Infof("Exported cells and panel to %v", s.cfg.SQLitePath)
	return nil
}

func catalog(ctx context.Context, s *runState) error {
	if len(s.cfg.MongoURI) <= 0 {
		s.log.Debugf("No Mongo URI configured, skipping catalog")
		return nil
	}

	return s.deps.Catalog(ctx, s.cfg, output.CatalogDocument(s.summary, s.location()), s.log)
}

// rollback - a failed run persists nothing, so whatever was written before the failure goes
func (s *runState) rollback() {
	if s.writer != nil && len(s.writer.Written()) > 0 {
		s.log.Infof("Run failed, deleting %v files already written", len(s.writer.Written()))
		if err := s.writer.Rollback(); err != nil {
			s.log.Errorf("%v", err)
		}
	}

	if s.sqliteStarted {
		if err := os.Remove(s.cfg.SQLitePath); err != nil && !os.IsNotExist(err) {
			s.log.Errorf("Failed to remove %v while rolling back: %v", s.cfg.SQLitePath, err)
		}
	}
}

// location - where the dataset was written, as a URL for S3 or a path for local output
func (s *runState) location() string {
	if len(s.cfg.OutputBucket) > 0 {
		return "s3://" + path.Join(s.cfg.OutputBucket, s.writer.Root())
	}
	return path.Join(s.deps.Bucket, s.writer.Root())
}

func (s *runState) recordMetrics() {
	m := s.deps.Metrics
	m.Cells.Set(float64(len(s.dataset.ColData)))
	m.Channels.Set(float64(len(s.dataset.RowData)))
	m.Images.Set(float64(s.imageCollection.Len()))
	m.Masks.Set(float64(s.maskCollection.Len()))
	for join, n := range s.mergeReport.Dropped {
		m.DroppedCells.WithLabelValues(join).Add(float64(n))
	}
	m.DroppedMasks.Add(float64(s.assembleReport.DroppedMasks))
	m.LastSuccess.Set(float64(s.deps.Clock.GetTimeNow().Unix()))
}

func mongoCatalog(ctx context.Context, cfg config.PrepConfig, doc bson.M, log logger.ILogger) error {
	client, err := mongoDBConnection.Connect(ctx, cfg.MongoURI, cfg.MongoCAFile, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	db := client.Database(mongoDBConnection.GetDatabaseName(cfg.MongoDatabase, cfg.EnvironmentName))
	if err := output.WriteCatalog(ctx, db, doc); err != nil {
		return err
	}

	log.Infof("Catalogued %v in %v", doc["_id"], db.Name())
	return nil
}
