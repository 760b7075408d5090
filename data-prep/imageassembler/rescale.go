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

package imageassembler

import (
	"math"

	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/pkg/errors"
)

// Largest value a 16-bit mask pixel can hold
const maskMax = 65535

// RescaleMask - restores integer cell IDs in a mask read as unsigned 16-bit data. Values are
// normalised by the 16-bit range and mapped back, so running it on an already rescaled mask
// changes nothing
func RescaleMask(r *models.Raster) error {
	for c, plane := range r.Planes {
		for i, v := range plane {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maskMax {
				return errors.Errorf("channel %v pixel (%v, %v) value %v is not a 16-bit cell ID", c, i%r.Width, i/r.Width, v)
			}
			plane[i] = float32(math.Round((f / maskMax) * maskMax))
		}
	}
	return nil
}
