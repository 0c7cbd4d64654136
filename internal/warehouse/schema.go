//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse defines the dimensional schema of the sales warehouse
// and loads cleaned datasets into it through an explicit Handle.
package warehouse

import (
	"fmt"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// Table names of the default schema.
const (
	Customers = "customers"
	Products  = "products"
	Sales     = "sales"
)

// Column describes a warehouse column.
type Column struct {
	Name     string
	Type     dataset.Type
	Required bool
}

// ForeignKey declares that Column references the primary key of Table.
// Foreign keys are advisory: orphans are reported, not rejected.
type ForeignKey struct {
	Column string
	Table  string
}

// Table describes one warehouse table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// DatasetColumns returns the table columns as dataset columns.
func (t *Table) DatasetColumns() []dataset.Column {
	cols := make([]dataset.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = dataset.Column{Name: c.Name, Type: c.Type}
	}
	return cols
}

// Schema is an ordered set of tables.
type Schema struct {
	Tables []*Table
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Validate checks that primary and foreign keys name existing columns and
// tables, and that primary-key columns are required.
func (s *Schema) Validate() error {
	if s == nil || len(s.Tables) == 0 {
		return ErrSchemaDefinitionMissing
	}
	for _, name := range []string{Customers, Products, Sales} {
		if _, ok := s.Table(name); !ok {
			return fmt.Errorf("%w: table %s is not defined", ErrSchemaDefinitionMissing, name)
		}
	}

	seen := make(map[string]bool)
	for _, t := range s.Tables {
		if seen[t.Name] {
			return fmt.Errorf("table %s defined twice", t.Name)
		}
		seen[t.Name] = true

		if len(t.PrimaryKey) == 0 {
			return fmt.Errorf("table %s has no primary key", t.Name)
		}
		for _, pk := range t.PrimaryKey {
			c, ok := t.Column(pk)
			if !ok {
				return fmt.Errorf("table %s: primary key column %s not defined", t.Name, pk)
			}
			if !c.Required {
				return fmt.Errorf("table %s: primary key column %s must be required", t.Name, pk)
			}
		}
		for _, fk := range t.ForeignKeys {
			if _, ok := t.Column(fk.Column); !ok {
				return fmt.Errorf("table %s: foreign key column %s not defined", t.Name, fk.Column)
			}
			ref, ok := s.Table(fk.Table)
			if !ok {
				return fmt.Errorf("table %s: foreign key references unknown table %s", t.Name, fk.Table)
			}
			if len(ref.PrimaryKey) != 1 {
				return fmt.Errorf("table %s: foreign key must reference a single-column key", t.Name)
			}
		}
	}
	_, err := s.CreateOrder()
	return err
}

// CreateOrder returns the tables ordered so that every table follows the
// tables its foreign keys reference. Ties keep declaration order.
func (s *Schema) CreateOrder() ([]*Table, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.Tables))
	order := make([]*Table, 0, len(s.Tables))

	var visit func(t *Table) error
	visit = func(t *Table) error {
		switch state[t.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("foreign key cycle through table %s", t.Name)
		}
		state[t.Name] = visiting
		for _, fk := range t.ForeignKeys {
			ref, ok := s.Table(fk.Table)
			if !ok {
				return fmt.Errorf("table %s: foreign key references unknown table %s", t.Name, fk.Table)
			}
			if ref.Name == t.Name {
				continue
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[t.Name] = done
		order = append(order, t)
		return nil
	}

	for _, t := range s.Tables {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// DefaultSchema returns the sales warehouse schema: two dimension tables
// and one fact table.
func DefaultSchema() *Schema {
	return &Schema{Tables: []*Table{
		{
			Name: Customers,
			Columns: []Column{
				{Name: "customer_id", Type: dataset.Integer, Required: true},
				{Name: "name", Type: dataset.String, Required: true},
				{Name: "region", Type: dataset.Categorical},
				{Name: "join_date", Type: dataset.Date},
				{Name: "loyalty_points", Type: dataset.Integer},
				{Name: "customer_segment", Type: dataset.Categorical},
			},
			PrimaryKey: []string{"customer_id"},
		},
		{
			Name: Products,
			Columns: []Column{
				{Name: "product_id", Type: dataset.Integer, Required: true},
				{Name: "product_name", Type: dataset.String, Required: true},
				{Name: "category", Type: dataset.Categorical},
				{Name: "unit_price", Type: dataset.Float},
				{Name: "stock_quantity", Type: dataset.Integer},
				{Name: "supplier", Type: dataset.String},
			},
			PrimaryKey: []string{"product_id"},
		},
		{
			Name: Sales,
			Columns: []Column{
				{Name: "transaction_id", Type: dataset.Integer, Required: true},
				{Name: "sale_date", Type: dataset.Date, Required: true},
				{Name: "customer_id", Type: dataset.Integer, Required: true},
				{Name: "product_id", Type: dataset.Integer, Required: true},
				{Name: "store_id", Type: dataset.Integer},
				{Name: "campaign_id", Type: dataset.Integer},
				{Name: "sale_amount", Type: dataset.Float, Required: true},
				{Name: "discount_percent", Type: dataset.Float},
				{Name: "payment_type", Type: dataset.Categorical},
			},
			PrimaryKey: []string{"transaction_id"},
			ForeignKeys: []ForeignKey{
				{Column: "customer_id", Table: Customers},
				{Column: "product_id", Table: Products},
			},
		},
	}}
}
