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

// Image/mask assembler: loads the image stacks and segmentation masks, names them so they line
// up with the cell table, restores integer cell IDs in the masks and labels image channels.
package imageassembler

import (
	"path"

	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/core/utils"
	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/imcdata/imcprep/data-prep/names"
	"github.com/imcdata/imcprep/data-prep/panel"
	"github.com/imcdata/imcprep/data-prep/tables"
	"github.com/imcdata/imcprep/data-prep/tiffstack"
	"github.com/pkg/errors"
)

// Inputs - where the extracted rasters are and how to label them
type Inputs struct {
	Files    fileaccess.FileAccess
	ImageDir string
	MaskDir  string

	// File name endings selecting images and masks, names.ImageFilePattern/MaskFilePattern if empty
	ImagePattern string
	MaskPattern  string

	Panel         *tables.Table
	ChannelMasses []string

	// tiffstack.ReadFile if nil
	Decode tiffstack.Decoder
}

// AssembleReport - collection sizes and what was dropped on the way
type AssembleReport struct {
	Images          int
	Masks           int
	DroppedMasks    int
	UnstrippedNames int
}

type assembleState struct {
	in  Inputs
	log logger.ILogger

	images *models.ImageCollection
	masks  *models.ImageCollection

	report AssembleReport
}

type stage struct {
	name string
	run  func(s *assembleState) error
}

var stages = []stage{
	{"load images", loadImages},
	{"load masks", loadMasks},
	{"rescale masks", rescaleMasks},
	{"filter masks", filterMasks},
	{"attach channel names", attachChannelNames},
}

// Assemble - builds the image and mask collections. On success they have passed
// models.ValidateCollections
func Assemble(in Inputs, log logger.ILogger) (*models.ImageCollection, *models.ImageCollection, AssembleReport, error) {
	if in.Decode == nil {
		in.Decode = tiffstack.ReadFile
	}
	if len(in.ImagePattern) <= 0 {
		in.ImagePattern = names.ImageFilePattern
	}
	if len(in.MaskPattern) <= 0 {
		in.MaskPattern = names.MaskFilePattern
	}

	s := &assembleState{in: in, log: log}
	for _, st := range stages {
		if err := st.run(s); err != nil {
			return nil, nil, s.report, errors.Wrapf(err, "image assembly failed at \"%v\"", st.name)
		}
		log.Debugf("Assembly stage \"%v\" done", st.name)
	}

	if err := models.ValidateCollections(s.images, s.masks); err != nil {
		return nil, nil, s.report, errors.Wrap(err, "assembled collections are inconsistent")
	}

	return s.images, s.masks, s.report, nil
}

// LoadCollection - decodes every file under dir whose name ends with pattern, in listing order,
// naming each by its file name with substring removed
func LoadCollection(files fileaccess.FileAccess, dir string, pattern string, substring string, decode tiffstack.Decoder, log logger.ILogger) (*models.ImageCollection, int, error) {
	paths, err := files.ListObjects(dir, "")
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to list %v", dir)
	}

	result := &models.ImageCollection{Entries: []models.ImageEntry{}}
	unstripped := 0
	for _, p := range paths {
		if !names.MatchesPattern(p, pattern) {
			continue
		}

		raster, err := decode(path.Join(dir, p))
		if err != nil {
			return nil, 0, err
		}
		if err := raster.CheckShape(); err != nil {
			return nil, 0, errors.Wrapf(err, "raster %v", p)
		}

		id := names.StackID(p)
		imageName, found := names.StripFixed(id, substring)
		if !found {
			log.Debugf("Raster %v doesn't contain %v, using its name unchanged", id, substring)
			unstripped++
		}

		log.Debugf("Loaded %v: %vx%v, %v channels", id, raster.Width, raster.Height, raster.Channels())
		result.Entries = append(result.Entries, models.ImageEntry{ID: id, ImageName: imageName, Raster: raster})
	}

	if result.Len() <= 0 {
		return nil, 0, errors.Errorf("no files ending in %v found in %v", pattern, dir)
	}
	return result, unstripped, nil
}

func loadImages(s *assembleState) error {
	images, unstripped, err := LoadCollection(s.in.Files, s.in.ImageDir, s.in.ImagePattern, names.ImageStackSubstring, s.in.Decode, s.log)
	if err != nil {
		return err
	}

	if dups := utils.FindDuplicates(images.Names()); len(dups) > 0 {
		return errors.Wrapf(models.ErrNameMismatch, "image names repeat: %v", dups)
	}

	s.images = images
	s.report.Images = images.Len()
	s.report.UnstrippedNames += unstripped
	return nil
}

func loadMasks(s *assembleState) error {
	masks, unstripped, err := LoadCollection(s.in.Files, s.in.MaskDir, s.in.MaskPattern, names.MaskStackSubstring, s.in.Decode, s.log)
	if err != nil {
		return err
	}

	s.masks = masks
	s.report.Masks = masks.Len()
	s.report.UnstrippedNames += unstripped
	return nil
}

func rescaleMasks(s *assembleState) error {
	for _, m := range s.masks.Entries {
		if err := RescaleMask(m.Raster); err != nil {
			return errors.Wrapf(err, "mask %v", m.ID)
		}
	}
	return nil
}

func filterMasks(s *assembleState) error {
	kept, dropped := FilterMasks(s.images, s.masks)
	for _, id := range dropped {
		s.log.Infof("Mask %v has no matching image, dropping it", id)
	}
	s.report.DroppedMasks = len(dropped)

	imageNames := s.images.Names()
	maskNames := kept.Names()
	if len(imageNames) != len(maskNames) {
		return errors.Wrapf(models.ErrNameMismatch, "%v images but %v masks after filtering", len(imageNames), len(maskNames))
	}
	for i := range imageNames {
		if imageNames[i] != maskNames[i] {
			return errors.Wrapf(models.ErrNameMismatch, "entry %v: image %v, mask %v", i, imageNames[i], maskNames[i])
		}
	}

	s.masks = kept
	return nil
}

func attachChannelNames(s *assembleState) error {
	rows, err := panel.Build(s.in.Panel, s.in.ChannelMasses, s.log)
	if err != nil {
		return err
	}

	channelNames := panel.ShortNames(rows)
	for _, img := range s.images.Entries {
		if img.Raster.Channels() != len(channelNames) {
			return errors.Wrapf(models.ErrChannelCount, "image %v has %v channels, panel has %v", img.ID, img.Raster.Channels(), len(channelNames))
		}
	}

	s.images.ChannelNames = channelNames
	return nil
}

// FilterMasks - masks whose ImageName is also an image name, in mask order, plus the IDs of the
// masks that were left out
func FilterMasks(images *models.ImageCollection, masks *models.ImageCollection) (*models.ImageCollection, []string) {
	imageNames := utils.SetFromSlice(images.Names())

	kept := &models.ImageCollection{Entries: []models.ImageEntry{}, ChannelNames: masks.ChannelNames}
	dropped := []string{}
	for _, m := range masks.Entries {
		if imageNames[m.ImageName] {
			kept.Entries = append(kept.Entries, m)
		} else {
			dropped = append(dropped, m.ID)
		}
	}
	return kept, dropped
}
