package dataset

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func salesFixture() *Dataset {
	return MustNew(
		[]Column{{Name: "tx", Type: Integer}, {Name: "amt", Type: Float}, {Name: "cat", Type: Categorical}},
		[]Record{
			{"tx": int64(1), "amt": 100.0, "cat": "A"},
			{"tx": int64(2), "amt": 50.0, "cat": "B"},
			{"tx": int64(3), "amt": nil, "cat": "A"},
		},
	)
}

func TestNewRejectsMismatchedRecords(t *testing.T) {
	cols := []Column{{Name: "a", Type: Integer}, {Name: "b", Type: String}}

	tests := []struct {
		name    string
		records []Record
	}{
		{"missing column", []Record{{"a": int64(1)}}},
		{"unknown column", []Record{{"a": int64(1), "c": "x"}}},
		{"extra column", []Record{{"a": int64(1), "b": "x", "c": "y"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(cols, tt.records); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := New([]Column{{Name: "a"}, {Name: "a"}}, nil); err == nil {
		t.Error("Expected duplicate column error")
	}
}

func TestColumnNotFound(t *testing.T) {
	ds := salesFixture()
	_, err := ds.Column("nope")
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}
	if _, err := ds.Values("nope"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound from Values, got %v", err)
	}
}

func TestMapColumnDoesNotMutateInput(t *testing.T) {
	ds := salesFixture()
	out, err := ds.MapColumn("cat", Categorical, func(_ int, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return strings.ToLower(v.(string)), nil
	})
	if err != nil {
		t.Fatalf("MapColumn failed: %v", err)
	}
	if got := ds.Record(0)["cat"]; got != "A" {
		t.Errorf("Input was mutated: got %v", got)
	}
	if got := out.Record(0)["cat"]; got != "a" {
		t.Errorf("Expected 'a', got %v", got)
	}
}

func TestCoerce(t *testing.T) {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   any
		target  Type
		want    any
		wantErr bool
	}{
		{"int from string", "42", Integer, int64(42), false},
		{"int from integral float string", "12.0", Integer, int64(12), false},
		{"int from fractional float", 12.5, Integer, nil, true},
		{"int from fractional string", "12.5", Integer, nil, true},
		{"int from text", "abc", Integer, nil, true},
		{"float from int", int64(3), Float, 3.0, false},
		{"float from string", " 2.5 ", Float, 2.5, false},
		{"float from text", "n/a", Float, nil, true},
		{"string from int", int64(7), String, "7", false},
		{"date from iso", "2025-03-14", Date, date, false},
		{"date from int", int64(20250314), Date, nil, true},
		{"string from date", date, String, "2025-03-14", false},
		{"int with leading zero is decimal", "010", Integer, int64(10), false},
		{"int 08 is decimal", "08", Integer, int64(8), false},
		{"int from hex text", "0x1F", Integer, nil, true},
		{"int with underscores", "1_000", Integer, nil, true},
		{"nan text is missing", "NaN", Float, nil, false},
		{"nan text is missing for int", "nan", Integer, nil, false},
		{"nan float is missing", math.NaN(), Integer, nil, false},
		{"inf text", "Inf", Float, nil, true},
		{"negative inf text", "-Infinity", Float, nil, true},
		{"blank is missing", "   ", Integer, nil, false},
		{"missing stays missing", nil, Float, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.target)
			if tt.wantErr {
				var ce *TypeCoercionError
				if !errors.As(err, &ce) {
					t.Fatalf("Expected TypeCoercionError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if Key(got) != Key(tt.want) {
				t.Errorf("Expected %v (%T), got %v (%T)", tt.want, tt.want, got, got)
			}
		})
	}
}

func TestKeyDistinguishesTypesAndSeparators(t *testing.T) {
	if Key(int64(1)) == Key("1") {
		t.Error("int64 and string keys collided")
	}
	if Key("a|b", "c") == Key("a", "b|c") {
		t.Error("separator collision")
	}
	if Key(nil) == Key("") {
		t.Error("missing and empty string collided")
	}
}

func TestCompare(t *testing.T) {
	if Compare(nil, int64(1)) >= 0 {
		t.Error("missing should sort first")
	}
	if Compare(int64(2), 10.0) >= 0 {
		t.Error("expected 2 < 10.0")
	}
	if Compare("b", "a") <= 0 {
		t.Error("expected b > a")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	input := "TransactionID,SaleDate,SaleAmount,PaymentType\n" +
		"1,2025-01-05,100.5,Card\n" +
		"2,2025-01-06,,Cash\n" +
		"3,2025-01-07,20,\n"

	ds, err := ReadCSV(strings.NewReader(input), ReadOptions{
		Types: map[string]Type{"SaleDate": Date},
	})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Expected 3 records, got %d", ds.Len())
	}

	wantTypes := map[string]Type{
		"TransactionID": Integer,
		"SaleDate":      Date,
		"SaleAmount":    Float,
		"PaymentType":   String,
	}
	for name, want := range wantTypes {
		col, err := ds.Column(name)
		if err != nil {
			t.Fatalf("Column %s: %v", name, err)
		}
		if col.Type != want {
			t.Errorf("Column %s: expected %s, got %s", name, want, col.Type)
		}
	}
	if !Missing(ds.Record(1)["SaleAmount"]) {
		t.Error("Expected empty field to be missing")
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != input {
		t.Errorf("Round trip mismatch:\n%s\nvs\n%s", buf.String(), input)
	}
}

func TestReadCSVPinnedTypeFailure(t *testing.T) {
	input := "id,amount\n1,10\n2,oops\n"
	_, err := ReadCSV(strings.NewReader(input), ReadOptions{
		Types: map[string]Type{"amount": Float},
	})
	var ce *TypeCoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected TypeCoercionError, got %v", err)
	}
	if ce.Column != "amount" || ce.Row != 1 {
		t.Errorf("Expected amount row 1, got %s row %d", ce.Column, ce.Row)
	}
}

func TestReadCSVDecimalIDsAndNaN(t *testing.T) {
	input := "ProductID,Price,Rating\n" +
		"010,NaN,1\n" +
		"08,2.5,inf\n" +
		"10,nan,3\n"

	ds, err := ReadCSV(strings.NewReader(input), ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	wantTypes := map[string]Type{
		"ProductID": Integer,
		"Price":     Float,
		"Rating":    String,
	}
	for name, want := range wantTypes {
		col, err := ds.Column(name)
		if err != nil {
			t.Fatalf("Column %s: %v", name, err)
		}
		if col.Type != want {
			t.Errorf("Column %s: expected %s, got %s", name, want, col.Type)
		}
	}

	ids := []int64{10, 8, 10}
	for i, want := range ids {
		if got := ds.Record(i)["ProductID"]; got != want {
			t.Errorf("Row %d: expected ProductID %d, got %v", i, want, got)
		}
	}
	if !Missing(ds.Record(0)["Price"]) || !Missing(ds.Record(2)["Price"]) {
		t.Error("Expected NaN prices to be missing")
	}
	if _, ok := Numeric(math.NaN()); ok {
		t.Error("Expected NaN to be non-numeric")
	}
}
