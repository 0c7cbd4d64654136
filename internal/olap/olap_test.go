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
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/scrub"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

var salesColumns = []dataset.Column{
	{Name: "tx", Type: dataset.Integer},
	{Name: "amt", Type: dataset.Float},
	{Name: "cat", Type: dataset.Categorical},
	{Name: "store", Type: dataset.Integer},
}

func sale(tx int64, amt float64, cat string, store int64) dataset.Record {
	return dataset.Record{"tx": tx, "amt": amt, "cat": cat, "store": store}
}

// lookup returns the total of the group with the given values.
func lookup(table *AggregateTable, values ...any) (float64, bool) {
	want := dataset.Key(values...)
	for _, r := range table.Rows() {
		if dataset.Key(r.Values...) == want {
			return r.Total, true
		}
	}
	return 0, false
}

func TestDiceScenario(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 100, "A", 1),
		sale(1, 100, "A", 1),
		sale(2, 50, "B", 1),
	})

	deduped := scrub.RemoveDuplicateRecords(ds)
	if deduped.Len() != 2 {
		t.Fatalf("Expected 2 rows after dedupe, got %d", deduped.Len())
	}

	table, err := Dice(deduped, []string{"cat", "store"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Expected 2 groups, got %d", table.Len())
	}
	if v, ok := lookup(table, "A", int64(1)); !ok || v != 100 {
		t.Errorf("Expected (A,1)=100, got %v (found=%v)", v, ok)
	}
	if v, ok := lookup(table, "B", int64(1)); !ok || v != 50 {
		t.Errorf("Expected (B,1)=50, got %v (found=%v)", v, ok)
	}

	ok, err := ValidateConsistency(150, table, MeasureColumn)
	if err != nil || !ok {
		t.Errorf("Expected consistency to hold, got %v, %v", ok, err)
	}
}

func TestDiceOrdering(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 1, "b", 2),
		sale(2, 2, "a", 3),
		sale(3, 3, "b", 1),
		sale(4, 4, "a", 1),
		{"tx": int64(5), "amt": 5.0, "cat": nil, "store": int64(9)},
	})
	table, err := Dice(ds, []string{"cat", "store"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}

	want := [][]any{
		{nil, int64(9)},
		{"a", int64(1)},
		{"a", int64(3)},
		{"b", int64(1)},
		{"b", int64(2)},
	}
	if table.Len() != len(want) {
		t.Fatalf("Expected %d groups, got %d", len(want), table.Len())
	}
	for i, row := range table.Rows() {
		if dataset.Key(row.Values...) != dataset.Key(want[i]...) {
			t.Errorf("Row %d: expected %v, got %v", i, want[i], row.Values)
		}
	}

	cols := table.Columns()
	if strings.Join(cols, ",") != "cat,store,TotalSales" {
		t.Errorf("Expected columns cat,store,TotalSales, got %v", cols)
	}
}

func TestDiceErrors(t *testing.T) {
	ds := dataset.MustNew(salesColumns, nil)

	if _, err := Dice(ds, []string{"region"}, "amt"); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound for group column, got %v", err)
	}
	if _, err := Dice(ds, []string{"cat"}, "revenue"); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound for measure, got %v", err)
	}
	if _, err := Dice(ds, []string{"store"}, "cat"); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for non-numeric measure, got %v", err)
	}
	if _, err := Dice(ds, []string{"cat", "cat"}, "amt"); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for repeated column, got %v", err)
	}
}

func TestDiceEmpty(t *testing.T) {
	table, err := Dice(dataset.MustNew(salesColumns, nil), []string{"cat"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected no groups, got %d", table.Len())
	}
	if ok, err := ValidateConsistency(0, table, MeasureColumn); !ok || err != nil {
		t.Errorf("Expected empty table to reconcile with 0, got %v, %v", ok, err)
	}
}

func TestDiceMissingMeasure(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 10, "a", 1),
		{"tx": int64(2), "amt": nil, "cat": "b", "store": int64(1)},
	})
	table, err := Dice(ds, []string{"cat"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}
	if v, ok := lookup(table, "b"); !ok || v != 0 {
		t.Errorf("Expected group b with total 0, got %v (found=%v)", v, ok)
	}
}

func TestSlice(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 10, "a", 1),
		sale(2, 20, "b", 2),
		sale(3, 30, "a", 2),
		{"tx": int64(4), "amt": 40.0, "cat": nil, "store": int64(2)},
	})

	tests := []struct {
		column string
		value  any
		want   int
	}{
		{"cat", "a", 2},
		{"store", 2, 3},
		{"store", "2", 3},
		{"store", int64(7), 0},
		{"cat", nil, 0},
	}
	for _, tt := range tests {
		out, err := Slice(ds, tt.column, tt.value)
		if err != nil {
			t.Errorf("Slice(%s=%v) failed: %v", tt.column, tt.value, err)
			continue
		}
		if out.Len() != tt.want {
			t.Errorf("Slice(%s=%v): expected %d rows, got %d", tt.column, tt.value, tt.want, out.Len())
		}
	}

	_, err := Slice(ds, "store", "two")
	var ce *dataset.TypeCoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected TypeCoercionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "store") || strings.Contains(err.Error(), "row") {
		t.Errorf("Expected column without row in %q", err.Error())
	}
	if _, err := Slice(ds, "region", "x"); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}
}

func TestPartitionInvariant(t *testing.T) {
	records := make([]dataset.Record, 0, 300)
	for i := 0; i < 300; i++ {
		cat := []string{"a", "b", "c"}[i%3]
		records = append(records, sale(int64(i), float64(i)*0.1+0.01, cat, int64(i%7)))
	}
	ds := dataset.MustNew(salesColumns, records)

	for _, groups := range [][]string{{"cat"}, {"store"}, {"cat", "store"}, {"store", "cat"}, {}} {
		sliced, err := Slice(ds, "cat", "b")
		if err != nil {
			t.Fatalf("Slice failed: %v", err)
		}
		raw, err := Total(sliced, "amt")
		if err != nil {
			t.Fatalf("Total failed: %v", err)
		}
		table, err := Dice(sliced, groups, "amt")
		if err != nil {
			t.Fatalf("Dice(%v) failed: %v", groups, err)
		}
		if _, err := ValidateConsistency(raw, table, MeasureColumn); err != nil {
			t.Errorf("Dice(%v): %v", groups, err)
		}
	}
}

func TestValidateConsistencyViolation(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{sale(1, 100, "A", 1)})
	table, err := Dice(ds, []string{"cat"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}

	ok, err := ValidateConsistency(100.5, table, MeasureColumn)
	var cv *ConsistencyViolation
	if !errors.As(err, &cv) {
		t.Fatalf("Expected ConsistencyViolation, got %v", err)
	}
	if ok {
		t.Error("Expected false alongside the violation")
	}
	if math.Abs(cv.Difference()-0.5) > 1e-9 {
		t.Errorf("Expected difference 0.5, got %v", cv.Difference())
	}

	// Within tolerance.
	if ok, err := ValidateConsistency(100+1e-7, table, MeasureColumn); !ok || err != nil {
		t.Errorf("Expected difference below tolerance to pass, got %v, %v", ok, err)
	}

	if _, err := ValidateConsistency(100, table, "revenue"); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}
}

func TestTrend(t *testing.T) {
	cols := []dataset.Column{
		{Name: "category", Type: dataset.Categorical},
		{Name: "Month", Type: dataset.Integer},
		{Name: "amount", Type: dataset.Float},
	}
	ds := dataset.MustNew(cols, []dataset.Record{
		{"category": "b", "Month": int64(1), "amount": 1.0},
		{"category": "a", "Month": int64(2), "amount": 2.0},
		{"category": "a", "Month": int64(1), "amount": 3.0},
		{"category": "a", "Month": int64(1), "amount": 4.0},
	})

	table, err := Trend(ds, "Month", "category", "amount")
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if strings.Join(table.Columns(), ",") != "Month,category,TotalSales" {
		t.Errorf("Expected time column first, got %v", table.Columns())
	}
	want := []struct {
		month int64
		cat   string
		total float64
	}{
		{1, "a", 7},
		{1, "b", 1},
		{2, "a", 2},
	}
	rows := table.Rows()
	if len(rows) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(rows))
	}
	for i, w := range want {
		if rows[i].Values[0] != w.month || rows[i].Values[1] != w.cat || rows[i].Total != w.total {
			t.Errorf("Row %d: expected %v, got %v %v", i, w, rows[i].Values, rows[i].Total)
		}
	}
}

func TestDrilldown(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{sale(1, 1, "a", 1)})
	if _, err := Drilldown(ds, nil, "amt"); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery without levels, got %v", err)
	}
	table, err := Drilldown(ds, []string{"store", "cat"}, "amt")
	if err != nil {
		t.Fatalf("Drilldown failed: %v", err)
	}
	if strings.Join(table.GroupColumns(), ",") != "store,cat" {
		t.Errorf("Expected levels in given order, got %v", table.GroupColumns())
	}
}

func TestDiceWorkersMatchSerial(t *testing.T) {
	n := 3*minShardSize + 17
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = sale(int64(i), float64(i%1000)*0.37, []string{"x", "y", "z", "w"}[i%4], int64(i%11))
	}
	ds := dataset.MustNew(salesColumns, records)

	serial, err := Dice(ds, []string{"cat", "store"}, "amt")
	if err != nil {
		t.Fatalf("Dice failed: %v", err)
	}
	parallel, err := Dice(ds, []string{"cat", "store"}, "amt", WithWorkers(4))
	if err != nil {
		t.Fatalf("Dice with workers failed: %v", err)
	}
	if serial.Len() != parallel.Len() {
		t.Fatalf("Expected %d groups, got %d", serial.Len(), parallel.Len())
	}
	for i := range serial.Rows() {
		s, p := serial.Rows()[i], parallel.Rows()[i]
		if dataset.Key(s.Values...) != dataset.Key(p.Values...) {
			t.Errorf("Row %d: group %v != %v", i, s.Values, p.Values)
		}
		if math.Abs(s.Total-p.Total) > Tolerance {
			t.Errorf("Row %d: total %v != %v", i, s.Total, p.Total)
		}
	}
}

func TestShardBounds(t *testing.T) {
	if b := shardBounds(10, 4); len(b) != 1 {
		t.Errorf("Expected small input on one shard, got %v", b)
	}
	b := shardBounds(2*minShardSize+1, 8)
	if len(b) != 2 {
		t.Fatalf("Expected 2 shards, got %v", b)
	}
	if b[0][0] != 0 || b[len(b)-1][1] != 2*minShardSize+1 || b[0][1] != b[1][0] {
		t.Errorf("Expected contiguous shards covering the input, got %v", b)
	}
}

func TestTotalCompensated(t *testing.T) {
	records := make([]dataset.Record, 0, 10001)
	records = append(records, sale(0, 1e8, "a", 1))
	for i := 1; i <= 10000; i++ {
		records = append(records, sale(int64(i), 0.01, "a", 1))
	}
	got, err := Total(dataset.MustNew(salesColumns, records), "amt")
	if err != nil {
		t.Fatalf("Total failed: %v", err)
	}
	if math.Abs(got-(1e8+100)) > 1e-6 {
		t.Errorf("Expected %v, got %v", 1e8+100, got)
	}
}

func TestRunQuery(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 10, "a", 1),
		sale(2, 20, "b", 1),
		sale(3, 30, "a", 2),
	})
	res, err := Run(ds, Query{
		Name:       "by_cat",
		Kind:       KindDice,
		Where:      []Predicate{{Column: "store", Value: 1}},
		Dimensions: []string{"cat"},
		Measure:    "amt",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Rows != 2 || res.RawTotal != 30 {
		t.Errorf("Expected 2 rows totalling 30, got %d and %v", res.Rows, res.RawTotal)
	}

	bad := []Query{
		{Name: "no measure", Kind: KindDice},
		{Name: "bad kind", Kind: "pivot", Measure: "amt"},
		{Name: "short trend", Kind: KindTrend, Dimensions: []string{"cat"}, Measure: "amt"},
		{Name: "empty drill", Kind: KindDrilldown, Measure: "amt"},
	}
	for _, q := range bad {
		if _, err := Run(ds, q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("%s: expected ErrInvalidQuery, got %v", q.Name, err)
		}
	}
}

func TestPivot(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 10, "b", 2),
		sale(2, 20, "a", 1),
		sale(3, 5, "a", 2),
	})
	table, _ := Dice(ds, []string{"cat", "store"}, "amt")
	p, err := table.Pivot("cat", "store")
	if err != nil {
		t.Fatalf("Pivot failed: %v", err)
	}
	if len(p.RowKeys) != 2 || p.RowKeys[0] != "a" || len(p.ColKeys) != 2 || p.ColKeys[0] != int64(1) {
		t.Fatalf("Unexpected keys %v x %v", p.RowKeys, p.ColKeys)
	}
	if p.Cells[0][0] != 20 || p.Cells[0][1] != 5 || p.Cells[1][0] != 0 || p.Cells[1][1] != 10 {
		t.Errorf("Unexpected cells %v", p.Cells)
	}
	if _, err := table.Pivot("cat", "region"); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("Expected ErrColumnNotFound, got %v", err)
	}

	var buf bytes.Buffer
	if err := p.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != "cat,1,2\na,20,5\nb,0,10\n" {
		t.Errorf("Unexpected pivot CSV %q", buf.String())
	}
}

func TestRunNaNMeasure(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{
		sale(1, 10, "a", 1),
		sale(2, math.NaN(), "a", 1),
		sale(3, 30, "b", 1),
	})
	res, err := Run(ds, Query{
		Name:       "by_cat",
		Kind:       KindDice,
		Dimensions: []string{"cat"},
		Measure:    "amt",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RawTotal != 40 {
		t.Errorf("Expected raw total 40, got %v", res.RawTotal)
	}
	if v, ok := lookup(res.Table, "a"); !ok || v != 10 {
		t.Errorf("Expected group a with total 10, got %v (found=%v)", v, ok)
	}
}

func TestAggregateCSV(t *testing.T) {
	ds := dataset.MustNew(salesColumns, []dataset.Record{sale(1, 2.5, "a", 1)})
	table, _ := Dice(ds, []string{"cat"}, "amt")

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != "cat,TotalSales\na,2.5\n" {
		t.Errorf("Unexpected CSV %q", buf.String())
	}
}

func TestDeriveDateParts(t *testing.T) {
	cols := []dataset.Column{
		{Name: "sale_date", Type: dataset.Date},
		{Name: "amount", Type: dataset.Float},
	}
	ds := dataset.MustNew(cols, []dataset.Record{
		{"sale_date": time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), "amount": 1.0},
		{"sale_date": nil, "amount": 2.0},
	})
	out, err := DeriveDateParts(ds, "sale_date")
	if err != nil {
		t.Fatalf("DeriveDateParts failed: %v", err)
	}
	r := out.Record(0)
	if r[YearColumn] != int64(2025) || r[MonthColumn] != int64(3) || r[DayColumn] != int64(14) {
		t.Errorf("Unexpected parts %v/%v/%v", r[YearColumn], r[MonthColumn], r[DayColumn])
	}
	if out.Record(1)[YearColumn] != nil {
		t.Errorf("Expected missing year for missing date, got %v", out.Record(1)[YearColumn])
	}
	if ds.HasColumn(YearColumn) {
		t.Error("Expected input dataset to be left untouched")
	}
}

func TestJoinDimension(t *testing.T) {
	fact := dataset.MustNew([]dataset.Column{
		{Name: "product_id", Type: dataset.Integer},
		{Name: "amount", Type: dataset.Float},
	}, []dataset.Record{
		{"product_id": int64(1), "amount": 1.0},
		{"product_id": int64(2), "amount": 2.0},
	})
	dim := dataset.MustNew([]dataset.Column{
		{Name: "product_id", Type: dataset.Integer},
		{Name: "category", Type: dataset.Categorical},
	}, []dataset.Record{
		{"product_id": int64(1), "category": "tools"},
		{"product_id": int64(1), "category": "ignored"},
	})

	out, err := JoinDimension(fact, dim, "product_id", "category", CategoryColumn)
	if err != nil {
		t.Fatalf("JoinDimension failed: %v", err)
	}
	if out.Record(0)[CategoryColumn] != "tools" {
		t.Errorf("Expected first dimension row to win, got %v", out.Record(0)[CategoryColumn])
	}
	if out.Record(1)[CategoryColumn] != nil {
		t.Errorf("Expected missing category for unknown product, got %v", out.Record(1)[CategoryColumn])
	}
}

func TestReadSalesCube(t *testing.T) {
	ctx := context.Background()
	h := warehouse.NewMemoryHandle()
	schema := warehouse.DefaultSchema()
	if err := warehouse.CreateSchema(ctx, h, schema); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}

	products, _ := schema.Table(warehouse.Products)
	sales, _ := schema.Table(warehouse.Sales)
	if _, err := h.Insert(ctx, products, [][]any{
		{int64(10), "hammer", "tools", 9.5, int64(3), nil},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if _, err := h.Insert(ctx, sales, [][]any{
		{int64(1), day, int64(1), int64(10), int64(3), nil, 19.0, nil, "card"},
		{int64(2), day, int64(1), int64(10), int64(4), nil, 1.0, nil, "cash"},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	cube, err := ReadSalesCube(ctx, h, schema)
	if err != nil {
		t.Fatalf("ReadSalesCube failed: %v", err)
	}
	res, err := Run(cube, Query{
		Name:       "year",
		Kind:       KindDrilldown,
		Where:      []Predicate{{Column: YearColumn, Value: 2025}},
		Dimensions: []string{YearColumn, MonthColumn, DayColumn, CategoryColumn},
		Measure:    "sale_amount",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v, ok := lookup(res.Table, int64(2025), int64(6), int64(2), "tools"); !ok || v != 20 {
		t.Errorf("Expected 20 for 2025-06-02 tools, got %v (found=%v)", v, ok)
	}
}
