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
	"database/sql"
	"os"

	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE panel (
		position INTEGER PRIMARY KEY,
		metal_tag TEXT NOT NULL,
		short_name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE cells (
		position INTEGER PRIMARY KEY,
		cell_id TEXT NOT NULL UNIQUE,
		image_number INTEGER NOT NULL,
		cell_number INTEGER NOT NULL,
		image_name TEXT NOT NULL,
		slide TEXT NOT NULL,
		cell_cat TEXT,
		cell_type TEXT,
		pos_x REAL,
		pos_y REAL,
		area REAL
	)`,
	`CREATE TABLE donor_attributes (
		cell_id TEXT NOT NULL REFERENCES cells(cell_id),
		name TEXT NOT NULL,
		value TEXT
	)`,
	`CREATE TABLE intensities (
		cell_id TEXT NOT NULL REFERENCES cells(cell_id),
		channel TEXT NOT NULL REFERENCES panel(short_name),
		counts REAL,
		expression REAL
	)`,
}

// ExportSQLite - writes the dataset to a fresh SQLite file for ad-hoc querying. Any existing
// file at dbPath is replaced
func ExportSQLite(ctx context.Context, dbPath string, ds *models.SingleCellDataset) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove old %v", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", dbPath)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := exportTables(ctx, tx, ds); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "failed to export to %v", dbPath)
	}
	return tx.Commit()
}

func exportTables(ctx context.Context, tx *sql.Tx, ds *models.SingleCellDataset) error {
	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for i, r := range ds.RowData {
		if _, err := tx.ExecContext(ctx, "INSERT INTO panel VALUES (?, ?, ?)", i, r.MetalTag, r.ShortName); err != nil {
			return err
		}
	}

	cellStmt, err := tx.PrepareContext(ctx, "INSERT INTO cells VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer cellStmt.Close()

	donorStmt, err := tx.PrepareContext(ctx, "INSERT INTO donor_attributes VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer donorStmt.Close()

	intensityStmt, err := tx.PrepareContext(ctx, "INSERT INTO intensities VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer intensityStmt.Close()

	for j, c := range ds.ColData {
		_, err := cellStmt.ExecContext(ctx, j, c.CellID, c.ImageNumber, c.CellNumber, c.ImageName, c.Slide, c.CellCat, c.CellType, c.PosX, c.PosY, c.Area)
		if err != nil {
			return err
		}

		for _, col := range ds.DonorColumns {
			if _, err := donorStmt.ExecContext(ctx, c.CellID, col, c.Donor[col]); err != nil {
				return err
			}
		}

		for i, channel := range ds.RowNames {
			if _, err := intensityStmt.ExecContext(ctx, c.CellID, channel, ds.Counts.At(i, j), ds.Expression.At(i, j)); err != nil {
				return err
			}
		}
	}

	return nil
}
