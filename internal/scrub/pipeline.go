package scrub

import (
	"fmt"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
)

// Conversion converts one column to a type.
type Conversion struct {
	Column string
	Type   dataset.Type
}

// Pipeline is an ordered set of cleaning rules for one entity file.
// Steps run in a fixed order: string formatting, type conversion,
// duplicate removal, missing-value handling, outlier removal. Formatting
// and conversion come first so that rows differing only in case or
// representation are recognised as duplicates.
type Pipeline struct {
	// Name labels log lines and metrics, usually the entity name.
	Name string

	// Format lists string columns to trim and lowercase.
	Format []string

	// Conversions lists type conversions.
	Conversions []Conversion

	// Identity restricts duplicate detection to these columns.
	Identity []string

	// Missing is the missing-value policy; nil skips the step.
	Missing *MissingPolicy

	// Outliers enables IQR fencing.
	Outliers bool

	// OutlierSkip lists numeric columns excluded from fencing.
	OutlierSkip []string
}

// Report counts the records removed by each step.
type Report struct {
	Input      int
	Duplicates int
	Missing    int
	Outliers   int
	Output     int
}

// Run applies the pipeline to ds.
func (p Pipeline) Run(ds *dataset.Dataset) (*dataset.Dataset, Report, error) {
	report := Report{Input: ds.Len()}
	out := ds
	var err error

	for _, col := range p.Format {
		out, err = FormatStringColumn(out, col)
		if err != nil {
			return nil, report, fmt.Errorf("%s: format %s: %w", p.Name, col, err)
		}
	}

	for _, conv := range p.Conversions {
		out, err = ConvertColumnType(out, conv.Column, conv.Type)
		if err != nil {
			return nil, report, fmt.Errorf("%s: convert %s: %w", p.Name, conv.Column, err)
		}
	}

	n := out.Len()
	out = RemoveDuplicateRecords(out, p.Identity...)
	report.Duplicates = n - out.Len()

	if p.Missing != nil {
		n = out.Len()
		out, err = HandleMissingValues(out, *p.Missing)
		if err != nil {
			return nil, report, fmt.Errorf("%s: missing values: %w", p.Name, err)
		}
		report.Missing = n - out.Len()
	}

	if p.Outliers {
		n = out.Len()
		out = RemoveOutliers(out, SkipColumns(p.OutlierSkip...))
		report.Outliers = n - out.Len()
	}

	report.Output = out.Len()

	metrics.ScrubRowsRemoved.WithLabelValues(p.Name, "duplicate").Add(float64(report.Duplicates))
	metrics.ScrubRowsRemoved.WithLabelValues(p.Name, "missing").Add(float64(report.Missing))
	metrics.ScrubRowsRemoved.WithLabelValues(p.Name, "outlier").Add(float64(report.Outliers))

	logging.Info().
		Str("entity", p.Name).
		Int("input", report.Input).
		Int("duplicates", report.Duplicates).
		Int("missing", report.Missing).
		Int("outliers", report.Outliers).
		Int("output", report.Output).
		Msg("Cleaned dataset")

	return out, report, nil
}
