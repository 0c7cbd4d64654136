package olap

import (
	"fmt"
	"math"

	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
)

// Tolerance is the largest accepted difference between a raw total and
// the sum of an aggregate built from the same rows.
const Tolerance = 1e-6

// ConsistencyViolation reports an aggregate that does not add up to the
// raw total of the rows it covers.
type ConsistencyViolation struct {
	Measure        string
	RawTotal       float64
	AggregateTotal float64
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("aggregate %s total %.6f does not match raw total %.6f (difference %g)",
		e.Measure, e.AggregateTotal, e.RawTotal, e.Difference())
}

// Difference returns the absolute difference between the totals.
func (e *ConsistencyViolation) Difference() float64 {
	return math.Abs(e.RawTotal - e.AggregateTotal)
}

// ValidateConsistency sums the measure column of the table and compares
// it with rawTotal. It returns true, or a *ConsistencyViolation when the
// totals differ by more than Tolerance.
func ValidateConsistency(rawTotal float64, table *AggregateTable, measure string) (bool, error) {
	aggTotal, err := table.Sum(measure)
	if err != nil {
		return false, err
	}
	if math.IsNaN(aggTotal) || math.IsNaN(rawTotal) || math.Abs(rawTotal-aggTotal) > Tolerance {
		metrics.ConsistencyChecks.WithLabelValues("violation").Inc()
		return false, &ConsistencyViolation{
			Measure:        measure,
			RawTotal:       rawTotal,
			AggregateTotal: aggTotal,
		}
	}
	metrics.ConsistencyChecks.WithLabelValues("ok").Inc()
	return true, nil
}
