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

package output

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holding one document per prepared dataset
const CatalogCollection = "datasets"

// CatalogDocument - the catalog entry for a dataset, keyed by dataset name
func CatalogDocument(s Summary, location string) bson.M {
	return bson.M{
		"_id":            s.DatasetName,
		"location":       location,
		"createdUnixSec": s.CreatedUnixSec,
		"cells":          s.Cells,
		"channels":       s.Channels,
		"images":         s.Images,
		"masks":          s.Masks,
		"channelNames":   s.ChannelNames,
		"imageNames":     s.ImageNames,
		"donorColumns":   s.DonorColumns,
		"droppedCells":   s.DroppedCells,
		"droppedMasks":   s.DroppedMasks,
		"files":          s.Files,
	}
}

// WriteCatalog - inserts or replaces the dataset's catalog entry
func WriteCatalog(ctx context.Context, db *mongo.Database, doc bson.M) error {
	coll := db.Collection(CatalogCollection)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc["_id"]}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "failed to catalog dataset %v", doc["_id"])
	}
	return nil
}
