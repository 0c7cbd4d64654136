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
	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

// Rename maps one source column to a warehouse column.
type Rename struct {
	Source string `mapstructure:"source"`
	Target string `mapstructure:"target"`
}

// Mapping renames dataset columns to table columns. Source columns
// without a rename keep their names.
type Mapping struct {
	renames map[string]string
}

// NewMapping builds a mapping. A later rename of the same source wins.
func NewMapping(renames ...Rename) Mapping {
	m := Mapping{renames: make(map[string]string, len(renames))}
	for _, r := range renames {
		m.renames[r.Source] = r.Target
	}
	return m
}

// Target returns the table column a source column maps to.
func (m Mapping) Target(source string) string {
	if t, ok := m.renames[source]; ok {
		return t
	}
	return source
}

// binding gives, for each table column in order, the dataset column that
// feeds it, or "" when the column has no source.
type binding struct {
	table   *Table
	sources []string
}

// bind resolves m against the columns of ds. Source columns that map to
// no table column are ignored.
func (m Mapping) bind(t *Table, ds *dataset.Dataset) (*binding, error) {
	for src, target := range m.renames {
		if !ds.HasColumn(src) {
			continue
		}
		if _, ok := t.Column(target); !ok {
			return nil, &ColumnMappingError{
				Table:  t.Name,
				Column: target,
				Reason: "mapped from " + src + " but not defined in the table",
			}
		}
	}

	bySource := make(map[string]string)
	for _, src := range ds.ColumnNames() {
		target := m.Target(src)
		if _, ok := t.Column(target); !ok {
			continue
		}
		if prev, ok := bySource[target]; ok {
			return nil, &ColumnMappingError{
				Table:  t.Name,
				Column: target,
				Reason: "mapped from both " + prev + " and " + src,
			}
		}
		bySource[target] = src
	}

	b := &binding{table: t, sources: make([]string, len(t.Columns))}
	for i, c := range t.Columns {
		src, ok := bySource[c.Name]
		if !ok && c.Required {
			return nil, &ColumnMappingError{
				Table:  t.Name,
				Column: c.Name,
				Reason: "required column has no source",
			}
		}
		b.sources[i] = src
	}
	return b, nil
}

// DefaultMappings returns the mappings from the raw CSV headers to the
// default schema, keyed by table name.
func DefaultMappings() map[string]Mapping {
	return map[string]Mapping{
		Customers: NewMapping(
			Rename{"CustomerID", "customer_id"},
			Rename{"Name", "name"},
			Rename{"Region", "region"},
			Rename{"JoinDate", "join_date"},
			Rename{"LoyaltyPoints", "loyalty_points"},
			Rename{"CustomerSegment", "customer_segment"},
		),
		Products: NewMapping(
			Rename{"ProductID", "product_id"},
			Rename{"ProductName", "product_name"},
			Rename{"Category", "category"},
			Rename{"UnitPrice", "unit_price"},
			Rename{"StockQuantity", "stock_quantity"},
			Rename{"Supplier", "supplier"},
		),
		Sales: NewMapping(
			Rename{"TransactionID", "transaction_id"},
			Rename{"SaleDate", "sale_date"},
			Rename{"CustomerID", "customer_id"},
			Rename{"ProductID", "product_id"},
			Rename{"StoreID", "store_id"},
			Rename{"CampaignID", "campaign_id"},
			Rename{"SaleAmount", "sale_amount"},
			Rename{"DiscountPercent", "discount_percent"},
			Rename{"PaymentType", "payment_type"},
		),
	}
}
