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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DateLayout is the ISO-8601 calendar date format used for date values on
// disk and in the warehouse.
const DateLayout = "2006-01-02"

// TypeCoercionError reports a value that cannot be represented in the
// requested type.
type TypeCoercionError struct {
	Column string
	Row    int
	Value  any
	Target Type
	Err    error
}

func (e *TypeCoercionError) Error() string {
	loc := ""
	if e.Column != "" {
		loc = fmt.Sprintf(" in column %q row %d", e.Column, e.Row)
	}
	return fmt.Sprintf("cannot convert %v (%T)%s to %s: %v", e.Value, e.Value, loc, e.Target, e.Err)
}

func (e *TypeCoercionError) Unwrap() error {
	return e.Err
}

// Coerce converts v to the Go representation of t. Missing values, blank
// strings and NaN stay missing. Conversions that would lose information,
// such as 12.5 to an integer, fail.
func Coerce(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if t != String && t != Categorical {
			if IsNaNText(s) {
				return nil, nil
			}
			v = s
		}
	}

	switch t {
	case Integer:
		return toInteger(v)
	case Float:
		if _, ok := v.(time.Time); ok {
			return nil, &TypeCoercionError{Value: v, Target: t, Err: fmt.Errorf("date is not numeric")}
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, &TypeCoercionError{Value: v, Target: t, Err: err}
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		if math.IsInf(f, 0) {
			return nil, &TypeCoercionError{Value: v, Target: t, Err: fmt.Errorf("infinite value")}
		}
		return f, nil
	case String, Categorical:
		if tm, ok := v.(time.Time); ok {
			return tm.Format(DateLayout), nil
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, &TypeCoercionError{Value: v, Target: t, Err: err}
		}
		return s, nil
	case Date:
		return toDate(v)
	default:
		return nil, &TypeCoercionError{Value: v, Target: t, Err: fmt.Errorf("unsupported target type")}
	}
}

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil, nil
		}
		return integralFloat(x, v)
	case float32:
		if math.IsNaN(float64(x)) {
			return nil, nil
		}
		return integralFloat(float64(x), v)
	case time.Time:
		return nil, &TypeCoercionError{Value: v, Target: Integer, Err: fmt.Errorf("date is not numeric")}
	case string:
		// Always base 10: "010" is ten, never octal.
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		// Accept "1e3" style integral floats, reject anything fractional.
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, &TypeCoercionError{Value: v, Target: Integer, Err: err}
		}
		return integralFloat(f, v)
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, &TypeCoercionError{Value: v, Target: Integer, Err: err}
	}
	return n, nil
}

// IsNaNText reports whether s spells a not-a-number value, which is read
// as missing.
func IsNaNText(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "nan")
}

func integralFloat(f float64, orig any) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, &TypeCoercionError{Value: orig, Target: Integer, Err: fmt.Errorf("not an integral value")}
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return nil, &TypeCoercionError{Value: orig, Target: Integer, Err: fmt.Errorf("out of range")}
	}
	return int64(f), nil
}

func toDate(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return truncateDate(x), nil
	case string:
		if t, err := time.Parse(DateLayout, x); err == nil {
			return t, nil
		}
		t, err := cast.ToTimeE(x)
		if err != nil {
			return nil, &TypeCoercionError{Value: v, Target: Date, Err: err}
		}
		return truncateDate(t), nil
	default:
		// Integers would be read as unix timestamps, which is never what a
		// sales file means.
		return nil, &TypeCoercionError{Value: v, Target: Date, Err: fmt.Errorf("not a date")}
	}
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders a value the way it is written to delimited files and to
// text columns in the warehouse. Missing values render as "".
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(DateLayout)
	default:
		return cast.ToString(x)
	}
}

// Compare orders two values of the same column. Missing values sort
// first; values of different Go types fall back to their formatted text.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case float64:
			return cmpOrdered(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpOrdered(x, y)
		case int64:
			return cmpOrdered(x, float64(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(Format(a), Format(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Numeric returns v as a float64 for summing and fencing.
func Numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	default:
		return 0, false
	}
}
