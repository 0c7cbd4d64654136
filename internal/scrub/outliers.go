//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package scrub

import (
	"math"
	"slices"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// FenceMultiplier scales the interquartile range to obtain the fence.
const FenceMultiplier = 1.5

// Fence is the closed interval of accepted values for one column.
type Fence struct {
	Q1, Q3       float64
	Lower, Upper float64
}

// IQR returns the interquartile range.
func (f Fence) IQR() float64 {
	return f.Q3 - f.Q1
}

// Contains reports whether v lies inside the fence, bounds included.
func (f Fence) Contains(v float64) bool {
	return v >= f.Lower && v <= f.Upper
}

// ComputeFence derives the IQR fence of values. ok is false when values
// is empty.
func ComputeFence(values []float64) (fence Fence, ok bool) {
	if len(values) == 0 {
		return Fence{}, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return Fence{
		Q1:    q1,
		Q3:    q3,
		Lower: q1 - FenceMultiplier*iqr,
		Upper: q3 + FenceMultiplier*iqr,
	}, true
}

// Quantile returns the p-quantile of sorted values using linear
// interpolation between the closest ranks: h = (n-1)p, the result is
// x[floor(h)] + (h-floor(h)) * (x[floor(h)+1] - x[floor(h)]).
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

type outlierConfig struct {
	skip map[string]bool
}

// OutlierOption customizes RemoveOutliers.
type OutlierOption func(*outlierConfig)

// SkipColumns leaves the named numeric columns unfenced. Identifier
// columns are the usual candidates.
func SkipColumns(names ...string) OutlierOption {
	return func(c *outlierConfig) {
		for _, n := range names {
			c.skip[n] = true
		}
	}
}

// RemoveOutliers drops records whose numeric values fall outside their
// column's IQR fence.
//
// Columns are processed one after another in column order, and each
// column's fence is computed over the records that survived the previous
// columns. The result therefore depends on column order; that is the
// intended behavior and must not be replaced by a single joint pass.
// Missing values, NaN included, do not contribute to a fence and never
// cause removal.
func RemoveOutliers(ds *dataset.Dataset, opts ...OutlierOption) *dataset.Dataset {
	cfg := outlierConfig{skip: make(map[string]bool)}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := ds
	for _, col := range ds.Columns() {
		if !col.Type.Numeric() || cfg.skip[col.Name] {
			continue
		}

		values := make([]float64, 0, out.Len())
		for _, rec := range out.Records() {
			if f, ok := dataset.Numeric(rec[col.Name]); ok {
				values = append(values, f)
			}
		}
		fence, ok := ComputeFence(values)
		if !ok {
			continue
		}

		before := out.Len()
		out = out.Filter(func(rec dataset.Record) bool {
			f, ok := dataset.Numeric(rec[col.Name])
			return !ok || fence.Contains(f)
		})

		logging.Debug().
			Str("column", col.Name).
			Float64("q1", fence.Q1).
			Float64("q3", fence.Q3).
			Float64("lower", fence.Lower).
			Float64("upper", fence.Upper).
			Int("removed", before-out.Len()).
			Msg("Applied outlier fence")
	}
	return out
}
