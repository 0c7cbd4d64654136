//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package scrub implements the cleaning rules applied to raw datasets
// before they are loaded into the warehouse. Every function returns a new
// dataset and leaves its input untouched.
package scrub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// ErrInvalidConfig is returned for bad caller parameters.
var ErrInvalidConfig = errors.New("invalid config")

// RemoveDuplicateRecords drops records identical to an earlier record.
// With no identity columns every column is compared; otherwise only the
// identity columns are. The first occurrence is kept and survivors keep
// their relative order. Unknown identity columns are ignored.
func RemoveDuplicateRecords(ds *dataset.Dataset, identity ...string) *dataset.Dataset {
	if ds.Len() == 0 {
		return ds
	}

	cols := make([]string, 0, len(identity))
	for _, c := range identity {
		if ds.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		cols = ds.ColumnNames()
	}

	seen := make(map[string]struct{}, ds.Len())
	out := ds.Filter(func(rec dataset.Record) bool {
		k := dataset.RecordKey(rec, cols)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})

	logging.Debug().
		Int("before", ds.Len()).
		Int("after", out.Len()).
		Msg("Removed duplicate records")
	return out
}

// MissingMode selects how HandleMissingValues treats missing values.
type MissingMode string

const (
	// DropRow removes every record holding a missing value.
	DropRow MissingMode = "drop"
	// Fill replaces missing values with defaults.
	Fill MissingMode = "fill"
)

// MissingPolicy configures HandleMissingValues.
type MissingPolicy struct {
	Mode MissingMode

	// Default applies to every column without an entry in Columns.
	// Nil means no global default.
	Default any

	// Columns holds per-column defaults.
	Columns map[string]any
}

// HandleMissingValues drops or fills missing values according to policy.
// Fill defaults are coerced to the column type. Columns with no applicable
// default keep their missing values, as do columns the global default
// cannot be coerced to. A per-column default that does not fit its column
// is an ErrInvalidConfig.
func HandleMissingValues(ds *dataset.Dataset, policy MissingPolicy) (*dataset.Dataset, error) {
	switch policy.Mode {
	case DropRow:
		return ds.Filter(func(rec dataset.Record) bool {
			for _, v := range rec {
				if dataset.Missing(v) {
					return false
				}
			}
			return true
		}), nil

	case Fill:
		if policy.Default == nil && len(policy.Columns) == 0 {
			return nil, fmt.Errorf("%w: fill mode requires a default value", ErrInvalidConfig)
		}
		for name := range policy.Columns {
			if !ds.HasColumn(name) {
				return nil, fmt.Errorf("%w: fill default for %s", dataset.ErrColumnNotFound, name)
			}
		}

		out := ds
		for _, col := range ds.Columns() {
			def, perColumn := policy.Columns[col.Name]
			if !perColumn {
				def = policy.Default
			}
			if def == nil {
				continue
			}
			fill, err := dataset.Coerce(def, col.Type)
			if err != nil || fill == nil {
				if !perColumn {
					logging.Debug().
						Str("column", col.Name).
						Str("type", col.Type.String()).
						Interface("default", def).
						Msg("Default does not fit column, leaving missing values")
					continue
				}
				return nil, fmt.Errorf("%w: default %v does not fit %s column %s",
					ErrInvalidConfig, def, col.Type, col.Name)
			}

			out, err = out.MapColumn(col.Name, col.Type, func(_ int, v any) (any, error) {
				if dataset.Missing(v) {
					return fill, nil
				}
				return v, nil
			})
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown missing-value mode %q", ErrInvalidConfig, policy.Mode)
	}
}

// FormatStringColumn trims surrounding whitespace and lowercases every
// string value of the named column. Non-string values pass through.
func FormatStringColumn(ds *dataset.Dataset, column string) (*dataset.Dataset, error) {
	col, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	return ds.MapColumn(column, col.Type, func(_ int, v any) (any, error) {
		if s, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(s)), nil
		}
		return v, nil
	})
}

// ConvertColumnType coerces every value of the column to target. The first
// value that cannot be converted aborts the call with a
// *dataset.TypeCoercionError naming the value and its row.
func ConvertColumnType(ds *dataset.Dataset, column string, target dataset.Type) (*dataset.Dataset, error) {
	return ds.MapColumn(column, target, func(row int, v any) (any, error) {
		out, err := dataset.Coerce(v, target)
		if err != nil {
			var ce *dataset.TypeCoercionError
			if errors.As(err, &ce) {
				ce.Column, ce.Row = column, row
				return nil, ce
			}
			return nil, err
		}
		return out, nil
	})
}
