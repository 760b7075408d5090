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

import "github.com/pkg/errors"

// Join cardinality failures
var (
	ErrDuplicateCellID   = errors.New("composite cell identifier is not unique")
	ErrMissingPanelRow   = errors.New("channel-mass entry has no matching full panel row")
	ErrAmbiguousPanelRow = errors.New("channel-mass entry matches more than one full panel row")
	ErrDuplicateChannel  = errors.New("panel short name is not unique")
	ErrNameMismatch      = errors.New("mask and image names differ")
)

// Shape failures
var (
	ErrShapeMismatch = errors.New("matrix shape does not match metadata")
	ErrChannelCount  = errors.New("image channel count does not match channel names")
)
