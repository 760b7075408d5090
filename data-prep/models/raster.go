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

import "fmt"

// Raster - a multi-channel image, one row-major plane of Width*Height values per channel
type Raster struct {
	Width  int
	Height int
	Planes [][]float32
}

func NewRaster(width int, height int, channels int) *Raster {
	r := &Raster{Width: width, Height: height, Planes: make([][]float32, channels)}
	for c := range r.Planes {
		r.Planes[c] = make([]float32, width*height)
	}
	return r
}

func (r *Raster) Channels() int {
	return len(r.Planes)
}

func (r *Raster) At(channel int, x int, y int) float32 {
	return r.Planes[channel][y*r.Width+x]
}

func (r *Raster) Set(channel int, x int, y int, v float32) {
	r.Planes[channel][y*r.Width+x] = v
}

// CheckShape - every plane must hold exactly Width*Height values
func (r *Raster) CheckShape() error {
	for c, p := range r.Planes {
		if len(p) != r.Width*r.Height {
			return fmt.Errorf("channel %v has %v values, expected %vx%v", c, len(p), r.Width, r.Height)
		}
	}
	return nil
}

// ImageEntry - one raster in a collection. ID is the file name without extension, ImageName is
// the ID with the collection's fixed substring removed and matches CellRecord.ImageName
type ImageEntry struct {
	ID        string
	ImageName string
	Raster    *Raster
}

// ImageCollection - ordered rasters. For masks, 0 is background and any other value is a cell
// number local to that image
type ImageCollection struct {
	Entries      []ImageEntry
	ChannelNames []string
}

func (c *ImageCollection) Len() int {
	return len(c.Entries)
}

// Names - the ImageName of each entry, in collection order
func (c *ImageCollection) Names() []string {
	result := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		result[i] = e.ImageName
	}
	return result
}
