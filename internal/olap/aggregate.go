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
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// ErrInvalidQuery is returned for aggregation parameters that cannot be
// evaluated, such as a non-numeric measure.
var ErrInvalidQuery = errors.New("invalid query")

// minShardSize keeps small datasets on one goroutine.
const minShardSize = 4096

type options struct {
	workers int
}

// Option configures an aggregation.
type Option func(*options)

// WithWorkers sums row shards on up to n goroutines. Partial sums are
// merged in shard order, so results do not depend on scheduling.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Slice returns the records whose column equals value. The value is
// converted to the column type first; missing values never match.
func Slice(ds *dataset.Dataset, column string, value any) (*dataset.Dataset, error) {
	col, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	want, err := dataset.Coerce(value, col.Type)
	if err != nil {
		return nil, fmt.Errorf("slice value for column %s: %w", column, err)
	}
	if want == nil {
		return ds.Filter(func(dataset.Record) bool { return false }), nil
	}

	key := dataset.Key(want)
	return ds.Filter(func(r dataset.Record) bool {
		v := r[column]
		return !dataset.Missing(v) && dataset.Key(v) == key
	}), nil
}

// Total sums the measure over every record. Missing values count as zero.
func Total(ds *dataset.Dataset, measure string) (float64, error) {
	if err := checkMeasure(ds, measure); err != nil {
		return 0, err
	}
	var s compensatedSum
	for _, r := range ds.Records() {
		if f, ok := dataset.Numeric(r[measure]); ok {
			s.add(f)
		}
	}
	return s.value(), nil
}

func checkMeasure(ds *dataset.Dataset, measure string) error {
	col, err := ds.Column(measure)
	if err != nil {
		return err
	}
	if !col.Type.Numeric() {
		return fmt.Errorf("%w: measure %s is %s", ErrInvalidQuery, measure, col.Type)
	}
	return nil
}

// Dice groups records by the exact combination of the group column values
// and sums the measure per group. Rows are ordered ascending by the group
// columns, the first column being the primary key; missing values sort
// first. Records with a missing measure still form their group.
func Dice(ds *dataset.Dataset, groupColumns []string, measure string, opts ...Option) (*AggregateTable, error) {
	if err := checkMeasure(ds, measure); err != nil {
		return nil, err
	}
	groups := make([]dataset.Column, len(groupColumns))
	seen := make(map[string]bool, len(groupColumns))
	for i, name := range groupColumns {
		col, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: column %s grouped twice", ErrInvalidQuery, name)
		}
		seen[name] = true
		groups[i] = col
	}

	o := buildOptions(opts)
	records := ds.Records()
	shards := shardBounds(len(records), o.workers)
	partials := make([]*partial, len(shards))

	var g errgroup.Group
	for i, b := range shards {
		g.Go(func() error {
			partials[i] = sumShard(records[b[0]:b[1]], groupColumns, measure)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newPartial()
	for _, p := range partials {
		for _, k := range p.order {
			merged.mergeGroup(k, p.groups[k])
		}
	}

	t := &AggregateTable{groups: groups, rows: make([]AggregateRow, 0, len(merged.order))}
	for _, k := range merged.order {
		grp := merged.groups[k]
		t.rows = append(t.rows, AggregateRow{Values: grp.values, Total: grp.sum.value()})
	}
	slices.SortStableFunc(t.rows, func(a, b AggregateRow) int {
		return compareValues(a.Values, b.Values)
	})
	return t, nil
}

// Drilldown groups by an ordered hierarchy of dimension levels, for
// example year, month, day and category. Leaving out trailing levels rolls
// up to a coarser grain.
func Drilldown(ds *dataset.Dataset, levels []string, measure string, opts ...Option) (*AggregateTable, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: drilldown needs at least one level", ErrInvalidQuery)
	}
	return Dice(ds, levels, measure, opts...)
}

// Trend sums the measure per group and time period. The time column is
// the first column and primary sort key.
func Trend(ds *dataset.Dataset, timeColumn, groupColumn, measure string, opts ...Option) (*AggregateTable, error) {
	t, err := Dice(ds, []string{groupColumn, timeColumn}, measure, opts...)
	if err != nil {
		return nil, err
	}
	t.groups[0], t.groups[1] = t.groups[1], t.groups[0]
	for i := range t.rows {
		v := t.rows[i].Values
		v[0], v[1] = v[1], v[0]
	}
	slices.SortStableFunc(t.rows, func(a, b AggregateRow) int {
		return compareValues(a.Values, b.Values)
	})
	return t, nil
}

type group struct {
	values []any
	sum    compensatedSum
}

// partial holds per-group sums in first-seen order.
type partial struct {
	order  []string
	groups map[string]*group
}

func newPartial() *partial {
	return &partial{groups: make(map[string]*group)}
}

func (p *partial) mergeGroup(key string, g *group) {
	if cur, ok := p.groups[key]; ok {
		cur.sum.merge(g.sum)
		return
	}
	p.order = append(p.order, key)
	p.groups[key] = &group{values: g.values, sum: g.sum}
}

func sumShard(records []dataset.Record, groupColumns []string, measure string) *partial {
	p := newPartial()
	for _, r := range records {
		key := dataset.RecordKey(r, groupColumns)
		g, ok := p.groups[key]
		if !ok {
			values := make([]any, len(groupColumns))
			for i, c := range groupColumns {
				values[i] = r[c]
			}
			g = &group{values: values}
			p.groups[key] = g
			p.order = append(p.order, key)
		}
		if f, ok := dataset.Numeric(r[measure]); ok {
			g.sum.add(f)
		}
	}
	return p
}

// shardBounds splits n records into at most workers contiguous ranges.
func shardBounds(n, workers int) [][2]int {
	if workers > 1 {
		workers = min(workers, max(1, n/minShardSize))
	}
	if workers <= 1 || n == 0 {
		return [][2]int{{0, n}}
	}
	size := (n + workers - 1) / workers
	bounds := make([][2]int, 0, workers)
	for start := 0; start < n; start += size {
		bounds = append(bounds, [2]int{start, min(start+size, n)})
	}
	return bounds
}

func compareValues(a, b []any) int {
	for i := range a {
		if c := dataset.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// sortValues orders keys ascending and renumbers idx to match.
func sortValues(keys []any, idx map[string]int) {
	slices.SortStableFunc(keys, dataset.Compare)
	for i, k := range keys {
		idx[dataset.Key(k)] = i
	}
}
