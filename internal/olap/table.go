//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package olap computes grouped sums over a sales fact dataset and checks
// that every aggregate reconciles with the raw total it was built from.
package olap

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// MeasureColumn names the summed column of every aggregate table.
const MeasureColumn = "TotalSales"

// AggregateRow is one group of an aggregate table.
type AggregateRow struct {
	Values []any
	Total  float64
}

// AggregateTable holds one row per distinct combination of group values,
// ordered ascending by the group columns.
type AggregateTable struct {
	groups []dataset.Column
	rows   []AggregateRow
}

// GroupColumns returns the group column names in order.
func (t *AggregateTable) GroupColumns() []string {
	names := make([]string, len(t.groups))
	for i, c := range t.groups {
		names[i] = c.Name
	}
	return names
}

// Columns returns the group columns followed by MeasureColumn.
func (t *AggregateTable) Columns() []string {
	return append(t.GroupColumns(), MeasureColumn)
}

// Rows returns the groups in order. The slice must not be modified.
func (t *AggregateTable) Rows() []AggregateRow {
	return t.rows
}

// Len returns the number of groups.
func (t *AggregateTable) Len() int {
	return len(t.rows)
}

// Sum adds up a numeric column of the table. Only MeasureColumn and
// numeric group columns can be summed.
func (t *AggregateTable) Sum(column string) (float64, error) {
	if column == MeasureColumn {
		var s compensatedSum
		for _, r := range t.rows {
			s.add(r.Total)
		}
		return s.value(), nil
	}
	for i, c := range t.groups {
		if c.Name != column {
			continue
		}
		if !c.Type.Numeric() {
			return 0, fmt.Errorf("%w: column %s is %s", ErrInvalidQuery, column, c.Type)
		}
		var s compensatedSum
		for _, r := range t.rows {
			if f, ok := dataset.Numeric(r.Values[i]); ok {
				s.add(f)
			}
		}
		return s.value(), nil
	}
	return 0, fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, column)
}

// Dataset returns the table as a dataset with the columns of Columns.
func (t *AggregateTable) Dataset() *dataset.Dataset {
	cols := append(append([]dataset.Column(nil), t.groups...),
		dataset.Column{Name: MeasureColumn, Type: dataset.Float})
	records := make([]dataset.Record, len(t.rows))
	for i, r := range t.rows {
		rec := make(dataset.Record, len(cols))
		for j, c := range t.groups {
			rec[c.Name] = r.Values[j]
		}
		rec[MeasureColumn] = r.Total
		records[i] = rec
	}
	return dataset.MustNew(cols, records)
}

// WriteCSV writes the table with a header row.
func (t *AggregateTable) WriteCSV(w io.Writer) error {
	return dataset.WriteCSV(w, t.Dataset())
}

// Pivot is a two-dimensional view of an aggregate over two of its group
// columns. Combinations without a group hold 0.
type Pivot struct {
	RowColumn string
	ColColumn string
	RowKeys   []any
	ColKeys   []any
	Cells     [][]float64
}

// Pivot spreads the table over two group columns. Totals of groups that
// share the same pair of values are added.
func (t *AggregateTable) Pivot(rowColumn, colColumn string) (*Pivot, error) {
	ri, ci := -1, -1
	for i, c := range t.groups {
		switch c.Name {
		case rowColumn:
			ri = i
		case colColumn:
			ci = i
		}
	}
	if ri < 0 {
		return nil, fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, rowColumn)
	}
	if ci < 0 {
		return nil, fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, colColumn)
	}

	p := &Pivot{RowColumn: rowColumn, ColColumn: colColumn}
	rowIdx := make(map[string]int)
	colIdx := make(map[string]int)
	for _, r := range t.rows {
		if k := dataset.Key(r.Values[ri]); !contains(rowIdx, k) {
			rowIdx[k] = len(p.RowKeys)
			p.RowKeys = append(p.RowKeys, r.Values[ri])
		}
		if k := dataset.Key(r.Values[ci]); !contains(colIdx, k) {
			colIdx[k] = len(p.ColKeys)
			p.ColKeys = append(p.ColKeys, r.Values[ci])
		}
	}
	sortValues(p.RowKeys, rowIdx)
	sortValues(p.ColKeys, colIdx)

	p.Cells = make([][]float64, len(p.RowKeys))
	for i := range p.Cells {
		p.Cells[i] = make([]float64, len(p.ColKeys))
	}
	for _, r := range t.rows {
		i := rowIdx[dataset.Key(r.Values[ri])]
		j := colIdx[dataset.Key(r.Values[ci])]
		p.Cells[i][j] += r.Total
	}
	return p, nil
}

// WriteCSV writes the pivot with the row column name and the column keys
// as header, then one line per row key.
func (p *Pivot) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	header := make([]string, 0, len(p.ColKeys)+1)
	header = append(header, p.RowColumn)
	for _, k := range p.ColKeys {
		header = append(header, dataset.Format(k))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	line := make([]string, len(header))
	for i, k := range p.RowKeys {
		line[0] = dataset.Format(k)
		for j, v := range p.Cells[i] {
			line[j+1] = dataset.Format(v)
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func contains(m map[string]int, k string) bool {
	_, ok := m[k]
	return ok
}

// compensatedSum is a Neumaier running sum.
type compensatedSum struct {
	sum, c float64
}

func (s *compensatedSum) add(x float64) {
	t := s.sum + x
	if math.Abs(s.sum) >= math.Abs(x) {
		s.c += (s.sum - t) + x
	} else {
		s.c += (x - t) + s.sum
	}
	s.sum = t
}

func (s *compensatedSum) merge(o compensatedSum) {
	s.add(o.sum)
	s.add(o.c)
}

func (s compensatedSum) value() float64 {
	return s.sum + s.c
}
