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

// Row-oriented CSV tables addressed by column name, as read from the published source files
package tables

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Table struct {
	Header []string
	Rows   [][]string

	colIdx map[string]int
}

// New - builds a table, failing if the header repeats a column or a row has the wrong width
func New(header []string, rows [][]string) (*Table, error) {
	t := &Table{Header: header, Rows: rows, colIdx: make(map[string]int, len(header))}
	for c, name := range header {
		if _, ok := t.colIdx[name]; ok {
			return nil, fmt.Errorf("duplicate column: %v", name)
		}
		t.colIdx[name] = c
	}

	for r, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %v has %v fields, header has %v", r+1, len(row), len(header))
		}
	}
	return t, nil
}

// Parse - reads a headed CSV. Quoted fields and a UTF-8 BOM on the first header are handled
func Parse(r io.Reader, sep rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) <= 0 {
		return nil, errors.New("no header row")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	return New(header, records[1:])
}

// ReadCSV - reads a headed CSV file
func ReadCSV(filePath string, sep rune) (*Table, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f, sep)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v", filePath)
	}
	return t, nil
}

// ReadFirstColumn - reads a headerless CSV file, returning the first field of each non-empty row
func ReadFirstColumn(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	result := []string{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %v", filePath)
		}
		if len(rec) > 0 && len(strings.TrimSpace(rec[0])) > 0 {
			result = append(result, strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff")))
		}
	}
	return result, nil
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// ColumnIndex - index of the named column, error if absent
func (t *Table) ColumnIndex(name string) (int, error) {
	idx, ok := t.colIdx[name]
	if !ok {
		return -1, fmt.Errorf("column %v not found", name)
	}
	return idx, nil
}

// ColumnIndexes - indexes of all named columns, error naming the first that's absent
func (t *Table) ColumnIndexes(names ...string) ([]int, error) {
	result := make([]int, len(names))
	for i, name := range names {
		idx, err := t.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		result[i] = idx
	}
	return result, nil
}

// ParseInt - integer field. CellProfiler sometimes writes whole numbers as "12.0", accept those
func ParseInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if i, err := strconv.Atoi(value); err == nil {
		return i, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%v is not a whole number", value)
	}
	return int(f), nil
}

// ParseFloat - float field, with NA/NaN/empty read as NaN
func ParseFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "", "NA", "NaN", "nan":
		return strconv.ParseFloat("NaN", 64)
	}
	return strconv.ParseFloat(value, 64)
}
