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

package utils

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Simple Go helper functions
// stuff that you'd expect to be part of the std lib but aren't

func SetFromSlice[K comparable](keys []K) map[K]bool {
	result := make(map[K]bool, len(keys))
	for _, key := range keys {
		result[key] = true
	}
	return result
}

// GetSortedMapKeys - map keys in ascending order, for stable log/report output
func GetSortedMapKeys[K constraints.Ordered, V any](theMap map[K]V) []K {
	result := make([]K, 0, len(theMap))

	for key := range theMap {
		result = append(result, key)
	}

	slices.Sort(result)
	return result
}

// FindDuplicates - values that occur more than once, in order of their second occurrence
func FindDuplicates[T comparable](items []T) []T {
	seen := make(map[T]int, len(items))
	dups := []T{}
	for _, item := range items {
		seen[item]++
		if seen[item] == 2 {
			dups = append(dups, item)
		}
	}
	return dups
}
