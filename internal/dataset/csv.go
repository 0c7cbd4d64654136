//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadOptions controls how delimited text is turned into a dataset.
type ReadOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// Types pins the type of named columns. Values of pinned columns are
	// coerced and a failure is returned as a TypeCoercionError. Columns not
	// listed are inferred: integer if every value parses as an integer,
	// float if every value parses as a number, string otherwise.
	Types map[string]Type
}

// ReadCSV reads a delimited file with a header row. Empty fields become
// missing values.
func ReadCSV(r io.Reader, opts ReadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.TrimLeadingSpace = false

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("failed to read header: empty input")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var raw [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(raw)+1, err)
		}
		raw = append(raw, row)
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		if t, ok := opts.Types[name]; ok {
			columns[i] = Column{Name: name, Type: t}
			continue
		}
		columns[i] = Column{Name: name, Type: inferType(raw, i)}
	}

	records := make([]Record, len(raw))
	for r, row := range raw {
		rec := make(Record, len(columns))
		for i, col := range columns {
			var field string
			if i < len(row) {
				field = row[i]
			}
			if strings.TrimSpace(field) == "" {
				rec[col.Name] = nil
				continue
			}
			if col.Type == String || col.Type == Categorical {
				rec[col.Name] = field
				continue
			}
			v, err := Coerce(field, col.Type)
			if err != nil {
				if ce, ok := err.(*TypeCoercionError); ok {
					ce.Column, ce.Row = col.Name, r
				}
				return nil, err
			}
			rec[col.Name] = v
		}
		records[r] = rec
	}

	return New(columns, records)
}

func inferType(rows [][]string, col int) Type {
	seen := false
	isInt, isFloat := true, true
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		s := strings.TrimSpace(row[col])
		if s == "" || IsNaNText(s) {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsInf(f, 0) {
				isFloat = false
				break
			}
		}
	}
	switch {
	case !seen:
		return String
	case isInt:
		return Integer
	case isFloat:
		return Float
	default:
		return String
	}
}

// WriteCSV writes the dataset with a header row.
func WriteCSV(w io.Writer, ds *Dataset) error {
	writer := csv.NewWriter(w)
	names := ds.ColumnNames()
	if err := writer.Write(names); err != nil {
		return err
	}
	row := make([]string, len(names))
	for _, rec := range ds.Records() {
		for i, name := range names {
			row[i] = Format(rec[name])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSVFile reads a delimited file from disk.
func ReadCSVFile(path string, opts ReadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// WriteCSVFile writes the dataset to disk, creating parent directories.
func WriteCSVFile(path string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
