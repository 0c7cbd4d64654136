//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package olap

import (
	"fmt"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// Kind selects the aggregation a query runs.
type Kind string

const (
	KindDice      Kind = "dice"
	KindDrilldown Kind = "drilldown"
	KindTrend     Kind = "trend"
)

// Predicate restricts a query to rows where Column equals Value.
type Predicate struct {
	Column string `mapstructure:"column"`
	Value  any    `mapstructure:"value"`
}

// Query is a cube query: slices applied in order, then one aggregation.
type Query struct {
	Name string `mapstructure:"name"`
	Kind Kind   `mapstructure:"kind"`

	// Where lists slice predicates; all must hold.
	Where []Predicate `mapstructure:"where"`

	// Dimensions are the group columns. A trend takes exactly two: the
	// time column, then the group column.
	Dimensions []string `mapstructure:"dimensions"`

	// Measure is the summed column.
	Measure string `mapstructure:"measure"`
}

// Validate checks the shape of the query.
func (q Query) Validate() error {
	if q.Measure == "" {
		return fmt.Errorf("%w: query %s has no measure", ErrInvalidQuery, q.Name)
	}
	switch q.Kind {
	case KindDice:
	case KindDrilldown:
		if len(q.Dimensions) == 0 {
			return fmt.Errorf("%w: drilldown %s has no levels", ErrInvalidQuery, q.Name)
		}
	case KindTrend:
		if len(q.Dimensions) != 2 {
			return fmt.Errorf("%w: trend %s needs a time and a group column", ErrInvalidQuery, q.Name)
		}
	default:
		return fmt.Errorf("%w: query %s has unknown kind %q", ErrInvalidQuery, q.Name, q.Kind)
	}
	for _, p := range q.Where {
		if p.Column == "" {
			return fmt.Errorf("%w: query %s has a predicate without column", ErrInvalidQuery, q.Name)
		}
	}
	return nil
}

// Result is a validated aggregate.
type Result struct {
	Query    Query
	Rows     int
	RawTotal float64
	Table    *AggregateTable
}

// Run slices ds, aggregates it, and checks the aggregate against the raw
// total of the sliced rows. A consistency violation is returned as an
// error and no table is produced.
func Run(ds *dataset.Dataset, q Query, opts ...Option) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sliced := ds
	for _, p := range q.Where {
		var err error
		sliced, err = Slice(sliced, p.Column, p.Value)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
	}

	var table *AggregateTable
	var err error
	switch q.Kind {
	case KindDice:
		table, err = Dice(sliced, q.Dimensions, q.Measure, opts...)
	case KindDrilldown:
		table, err = Drilldown(sliced, q.Dimensions, q.Measure, opts...)
	case KindTrend:
		table, err = Trend(sliced, q.Dimensions[0], q.Dimensions[1], q.Measure, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}

	raw, err := Total(sliced, q.Measure)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	if _, err := ValidateConsistency(raw, table, MeasureColumn); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}

	logging.Info().
		Str("query", q.Name).
		Str("kind", string(q.Kind)).
		Int("rows", sliced.Len()).
		Int("groups", table.Len()).
		Float64("total", raw).
		Msg("Aggregate validated")

	return &Result{Query: q, Rows: sliced.Len(), RawTotal: raw, Table: table}, nil
}
