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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// Calendar columns added by DeriveDateParts.
const (
	YearColumn  = "Year"
	MonthColumn = "Month"
	DayColumn   = "Day"
)

// CategoryColumn is the product category attribute joined onto sales.
const CategoryColumn = "product_category"

// DeriveDateParts adds integer Year, Month and Day columns taken from a
// date column. Missing dates give missing parts.
func DeriveDateParts(ds *dataset.Dataset, dateColumn string) (*dataset.Dataset, error) {
	if _, err := ds.Column(dateColumn); err != nil {
		return nil, err
	}

	for i, r := range ds.Records() {
		if _, err := dataset.Coerce(r[dateColumn], dataset.Date); err != nil {
			var ce *dataset.TypeCoercionError
			if errors.As(err, &ce) {
				ce.Column, ce.Row = dateColumn, i
			}
			return nil, err
		}
	}

	parts := []struct {
		name string
		fn   func(time.Time) int64
	}{
		{YearColumn, func(t time.Time) int64 { return int64(t.Year()) }},
		{MonthColumn, func(t time.Time) int64 { return int64(t.Month()) }},
		{DayColumn, func(t time.Time) int64 { return int64(t.Day()) }},
	}

	out := ds
	for _, p := range parts {
		var err error
		out, err = out.AddColumn(dataset.Column{Name: p.name, Type: dataset.Integer}, func(r dataset.Record) (any, error) {
			v, err := dataset.Coerce(r[dateColumn], dataset.Date)
			if err != nil || v == nil {
				return nil, err
			}
			return p.fn(v.(time.Time)), nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// JoinDimension copies attribute from the dimension row whose key matches
// the fact's key, adding it to the fact as column as. Facts without a
// matching dimension row get a missing value. When the dimension repeats
// a key, its first row wins.
func JoinDimension(fact, dim *dataset.Dataset, key, attribute, as string) (*dataset.Dataset, error) {
	if _, err := fact.Column(key); err != nil {
		return nil, fmt.Errorf("fact: %w", err)
	}
	if _, err := dim.Column(key); err != nil {
		return nil, fmt.Errorf("dimension: %w", err)
	}
	attr, err := dim.Column(attribute)
	if err != nil {
		return nil, fmt.Errorf("dimension: %w", err)
	}

	lookup := make(map[string]any, dim.Len())
	for _, r := range dim.Records() {
		k := dataset.Key(r[key])
		if _, ok := lookup[k]; !ok {
			lookup[k] = r[attribute]
		}
	}

	return fact.AddColumn(dataset.Column{Name: as, Type: attr.Type}, func(r dataset.Record) (any, error) {
		return lookup[dataset.Key(r[key])], nil
	})
}

// ReadSalesCube reads the sales fact table from the warehouse, joins the
// product category and adds calendar columns.
func ReadSalesCube(ctx context.Context, h warehouse.Handle, s *warehouse.Schema) (*dataset.Dataset, error) {
	sales, ok := s.Table(warehouse.Sales)
	if !ok {
		return nil, fmt.Errorf("%w: table %s is not defined", warehouse.ErrSchemaDefinitionMissing, warehouse.Sales)
	}
	products, ok := s.Table(warehouse.Products)
	if !ok {
		return nil, fmt.Errorf("%w: table %s is not defined", warehouse.ErrSchemaDefinitionMissing, warehouse.Products)
	}

	fact, err := h.Scan(ctx, sales)
	if err != nil {
		return nil, &warehouse.StorageError{Op: "scan", Table: sales.Name, Err: err}
	}
	dim, err := h.Scan(ctx, products)
	if err != nil {
		return nil, &warehouse.StorageError{Op: "scan", Table: products.Name, Err: err}
	}

	return BuildSalesCube(fact, dim)
}

// BuildSalesCube joins the product category onto a sales fact dataset in
// warehouse column names and adds calendar columns.
func BuildSalesCube(sales, products *dataset.Dataset) (*dataset.Dataset, error) {
	cube, err := JoinDimension(sales, products, "product_id", "category", CategoryColumn)
	if err != nil {
		return nil, err
	}
	return DeriveDateParts(cube, "sale_date")
}
