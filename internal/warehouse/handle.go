//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// Handle is an open warehouse. Rows passed to Insert hold values in the
// Go representation of their column types, in table column order.
type Handle interface {
	// DropTable drops a table if it exists.
	DropTable(ctx context.Context, name string) error

	// CreateTable creates an empty table.
	CreateTable(ctx context.Context, t *Table) error

	// Insert appends rows and returns the positions of rows rejected
	// because their primary key is already present. Other rows are kept.
	Insert(ctx context.Context, t *Table, rows [][]any) (rejected []int, err error)

	// ColumnValues returns every value of one column.
	ColumnValues(ctx context.Context, table, column string) ([]any, error)

	// Count returns the number of rows in a table.
	Count(ctx context.Context, table string) (int64, error)

	// Scan reads a whole table.
	Scan(ctx context.Context, t *Table) (*dataset.Dataset, error)
}

// Ledger is implemented by handles that keep a record of schema creation
// and loads.
type Ledger interface {
	RecordSchema(ctx context.Context, s *Schema) error
	RecordLoad(ctx context.Context, table string, res LoadResult) error
}

// ErrSchemaDefinitionMissing is returned when no schema, or an incomplete
// one, is supplied.
var ErrSchemaDefinitionMissing = errors.New("schema definition missing")

// StorageError wraps a failure reported by a Handle.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ColumnMappingError reports a mapping that cannot be bound to a table.
type ColumnMappingError struct {
	Table  string
	Column string
	Reason string
}

func (e *ColumnMappingError) Error() string {
	return fmt.Sprintf("table %s: column %s: %s", e.Table, e.Column, e.Reason)
}

// DuplicateKeyError lists primary keys that were already present in the
// table. Rows with other keys were inserted.
type DuplicateKeyError struct {
	Table string
	Keys  []any
}

func (e *DuplicateKeyError) Error() string {
	const shown = 5
	parts := make([]string, 0, shown)
	for i, k := range e.Keys {
		if i == shown {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, dataset.Format(k))
	}
	return fmt.Sprintf("table %s: %d duplicate primary keys [%s]",
		e.Table, len(e.Keys), strings.Join(parts, ", "))
}

// CreateSchema drops every table of the schema and creates it again.
// Tables are dropped in reverse dependency order and created in dependency
// order. A failure leaves the warehouse as it is.
func CreateSchema(ctx context.Context, h Handle, s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	order, err := s.CreateOrder()
	if err != nil {
		return err
	}

	for i := len(order) - 1; i >= 0; i-- {
		if err := h.DropTable(ctx, order[i].Name); err != nil {
			return &StorageError{Op: "drop table", Table: order[i].Name, Err: err}
		}
	}
	for _, t := range order {
		if err := h.CreateTable(ctx, t); err != nil {
			return &StorageError{Op: "create table", Table: t.Name, Err: err}
		}
	}

	if l, ok := h.(Ledger); ok {
		if err := l.RecordSchema(ctx, s); err != nil {
			return &StorageError{Op: "record schema", Err: err}
		}
	}
	return nil
}
