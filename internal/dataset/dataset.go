//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dataset provides the in-memory ordered table used by every stage
// of the sales warehouse pipeline.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnNotFound is returned when an operation names a column the
// dataset does not have.
var ErrColumnNotFound = errors.New("column not found")

// Type is the semantic type of a column.
type Type int

const (
	// String holds free text.
	String Type = iota
	// Integer holds int64 values.
	Integer
	// Float holds float64 values.
	Float
	// Date holds time.Time values truncated to UTC midnight.
	Date
	// Categorical holds string labels drawn from a small domain.
	Categorical
)

// String returns the lowercase type name.
func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case Date:
		return "date"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Numeric reports whether values of the type are fenced and summed.
func (t Type) Numeric() bool {
	return t == Integer || t == Float
}

// ParseType converts a type name (as used in config files) to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return Integer, nil
	case "float", "double", "numeric":
		return Float, nil
	case "string", "text":
		return String, nil
	case "date":
		return Date, nil
	case "categorical", "category":
		return Categorical, nil
	default:
		return String, fmt.Errorf("unknown column type: %s", s)
	}
}

// Column describes one column of a dataset.
type Column struct {
	Name string
	Type Type
}

// Record maps column names to values. A nil value is the missing marker.
type Record map[string]any

// Missing reports whether v is the missing marker.
func Missing(v any) bool {
	return v == nil
}

// Dataset is an ordered sequence of records sharing one column set.
//
// Datasets are never modified after construction; operations that change
// data build a new Dataset. Records handed out by Record or Records must
// not be written to.
type Dataset struct {
	columns []Column
	index   map[string]int
	records []Record
}

// New builds a dataset, checking that every record carries exactly the
// given columns.
func New(columns []Column, records []Record) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}

	for i, rec := range records {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("record %d has %d values, expected %d", i, len(rec), len(columns))
		}
		for name := range rec {
			if _, ok := index[name]; !ok {
				return nil, fmt.Errorf("record %d has unknown column %q", i, name)
			}
		}
	}

	return &Dataset{
		columns: append([]Column(nil), columns...),
		index:   index,
		records: records,
	}, nil
}

// MustNew is like New but panics on error. It is intended for fixtures.
func MustNew(columns []Column, records []Record) *Dataset {
	ds, err := New(columns, records)
	if err != nil {
		panic(err)
	}
	return ds
}

// Empty returns a dataset with the given columns and no records.
func Empty(columns []Column) *Dataset {
	return MustNew(columns, nil)
}

// Columns returns a copy of the column list.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (d *Dataset) Column(name string) (Column, error) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return d.columns[i], nil
}

// HasColumn reports whether the dataset has the named column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Record returns the i-th record.
func (d *Dataset) Record(i int) Record {
	return d.records[i]
}

// Records returns the record slice. Callers must not modify it.
func (d *Dataset) Records() []Record {
	return d.records
}

// Values returns the values of one column in record order.
func (d *Dataset) Values(name string) ([]any, error) {
	if _, err := d.Column(name); err != nil {
		return nil, err
	}
	out := make([]any, len(d.records))
	for i, rec := range d.records {
		out[i] = rec[name]
	}
	return out, nil
}

// Filter returns a dataset holding the records for which keep returns true.
// Records are shared with the receiver, which is safe because neither
// dataset writes to them.
func (d *Dataset) Filter(keep func(Record) bool) *Dataset {
	out := make([]Record, 0, len(d.records))
	for _, rec := range d.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return d.withRecords(out)
}

// MapColumn returns a dataset in which the named column has been replaced
// by fn applied to every value. The column takes the type newType.
// Records are copied; the receiver is left untouched.
func (d *Dataset) MapColumn(name string, newType Type, fn func(row int, v any) (any, error)) (*Dataset, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}

	out := make([]Record, len(d.records))
	for row, rec := range d.records {
		v, err := fn(row, rec[name])
		if err != nil {
			return nil, err
		}
		cp := rec.clone()
		cp[name] = v
		out[row] = cp
	}

	columns := d.Columns()
	columns[i].Type = newType
	return &Dataset{columns: columns, index: d.index, records: out}, nil
}

// AddColumn returns a dataset with an extra column computed from each
// record. It fails if the column already exists.
func (d *Dataset) AddColumn(col Column, fn func(Record) (any, error)) (*Dataset, error) {
	if d.HasColumn(col.Name) {
		return nil, fmt.Errorf("duplicate column %q", col.Name)
	}
	out := make([]Record, len(d.records))
	for row, rec := range d.records {
		v, err := fn(rec)
		if err != nil {
			return nil, err
		}
		cp := rec.clone()
		cp[col.Name] = v
		out[row] = cp
	}
	return New(append(d.Columns(), col), out)
}

func (d *Dataset) withRecords(records []Record) *Dataset {
	return &Dataset{columns: d.columns, index: d.index, records: records}
}

func (r Record) clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
