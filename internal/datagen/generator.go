package datagen

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// Config sizes a generated batch.
type Config struct {
	Customers int
	Products  int
	Sales     int
	Stores    int
	Campaigns int

	// Start and End bound sale and join dates.
	Start time.Time
	End   time.Time

	// DirtRate is the share of rows given one defect: a duplicate, a
	// blank field, scruffy text, an outlier or an unknown reference.
	DirtRate float64

	// Seed makes the batch reproducible; 0 picks a random seed.
	Seed uint64

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int
}

// DefaultConfig returns the size of a small demonstration batch.
func DefaultConfig() Config {
	return Config{
		Customers:        200,
		Products:         60,
		Sales:            5000,
		Stores:           8,
		Campaigns:        5,
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		DirtRate:         0.05,
		ProgressInterval: 100000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Customers < 1 || c.Products < 1 || c.Sales < 0 {
		return fmt.Errorf("need at least one customer and one product, got %d and %d", c.Customers, c.Products)
	}
	if c.Stores < 1 {
		return fmt.Errorf("stores must be at least 1, got %d", c.Stores)
	}
	if c.Campaigns < 0 {
		return fmt.Errorf("campaigns must not be negative, got %d", c.Campaigns)
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("end date %s must be after start date %s",
			c.End.Format(dataset.DateLayout), c.Start.Format(dataset.DateLayout))
	}
	if c.DirtRate < 0 || c.DirtRate > 1 {
		return fmt.Errorf("dirt rate must be between 0 and 1, got %v", c.DirtRate)
	}
	return nil
}

// Raw column sets, as found in the source files.
var (
	CustomerColumns = []dataset.Column{
		{Name: "CustomerID", Type: dataset.Integer},
		{Name: "Name", Type: dataset.String},
		{Name: "Region", Type: dataset.String},
		{Name: "JoinDate", Type: dataset.String},
		{Name: "LoyaltyPoints", Type: dataset.Integer},
		{Name: "CustomerSegment", Type: dataset.String},
	}
	ProductColumns = []dataset.Column{
		{Name: "ProductID", Type: dataset.Integer},
		{Name: "ProductName", Type: dataset.String},
		{Name: "Category", Type: dataset.String},
		{Name: "UnitPrice", Type: dataset.Float},
		{Name: "StockQuantity", Type: dataset.Integer},
		{Name: "Supplier", Type: dataset.String},
	}
	SaleColumns = []dataset.Column{
		{Name: "TransactionID", Type: dataset.Integer},
		{Name: "SaleDate", Type: dataset.String},
		{Name: "CustomerID", Type: dataset.Integer},
		{Name: "ProductID", Type: dataset.Integer},
		{Name: "StoreID", Type: dataset.Integer},
		{Name: "CampaignID", Type: dataset.Integer},
		{Name: "SaleAmount", Type: dataset.Float},
		{Name: "DiscountPercent", Type: dataset.Float},
		{Name: "PaymentType", Type: dataset.String},
	}
)

// Batch is one generated set of raw files.
type Batch struct {
	Customers *dataset.Dataset
	Products  *dataset.Dataset
	Sales     *dataset.Dataset
}

// Tables returns the datasets keyed by entity name.
func (b *Batch) Tables() map[string]*dataset.Dataset {
	return map[string]*dataset.Dataset{
		"customers": b.Customers,
		"products":  b.Products,
		"sales":     b.Sales,
	}
}

// Generator produces raw batches.
type Generator struct {
	cfg   Config
	faker *Faker
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := NewFaker()
	if cfg.Seed != 0 {
		f = NewFakerWithSeed(cfg.Seed)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultConfig().ProgressInterval
	}
	return &Generator{cfg: cfg, faker: f}, nil
}

// Generate builds customers, products and sales. It stops early when ctx
// is cancelled.
func (g *Generator) Generate(ctx context.Context) (*Batch, error) {
	customers, err := g.customers(ctx)
	if err != nil {
		return nil, err
	}
	products, prices, err := g.products(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := g.sales(ctx, prices)
	if err != nil {
		return nil, err
	}
	return &Batch{Customers: customers, Products: products, Sales: sales}, nil
}

type defect int

const (
	clean defect = iota
	duplicate
	blank
	scruffy
	outlier
	orphan
)

func (g *Generator) defect(kinds ...defect) defect {
	if !g.faker.Chance(g.cfg.DirtRate) {
		return clean
	}
	return Choose(g.faker, kinds)
}

// emit appends rec, twice when it is to be duplicated.
func emit(records []dataset.Record, rec dataset.Record, d defect) []dataset.Record {
	records = append(records, rec)
	if d == duplicate {
		cp := make(dataset.Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		records = append(records, cp)
	}
	return records
}

func (g *Generator) customers(ctx context.Context) (*dataset.Dataset, error) {
	f := g.faker
	progress := NewProgressReporter("customers", int64(g.cfg.Customers), int64(g.cfg.ProgressInterval))
	records := make([]dataset.Record, 0, g.cfg.Customers)

	for i := 1; i <= g.cfg.Customers; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := g.defect(duplicate, blank, scruffy, outlier)
		rec := dataset.Record{
			"CustomerID":      int64(i),
			"Name":            f.Name(),
			"Region":          Choose(f, Regions),
			"JoinDate":        f.Date(g.cfg.Start.AddDate(-3, 0, 0), g.cfg.End).Format(dataset.DateLayout),
			"LoyaltyPoints":   f.Int64(0, 1000),
			"CustomerSegment": ChooseWeighted(f, Segments, []int{6, 3, 1}),
		}
		switch d {
		case blank:
			rec[Choose(f, []string{"Region", "JoinDate", "CustomerSegment"})] = nil
		case scruffy:
			rec["Region"] = f.Scruff(rec["Region"].(string))
		case outlier:
			rec["LoyaltyPoints"] = f.Int64(50000, 100000)
		}
		records = emit(records, rec, d)
		progress.Update(1)
	}
	progress.Done()
	return dataset.New(CustomerColumns, records)
}

func (g *Generator) products(ctx context.Context) (*dataset.Dataset, map[int64]float64, error) {
	f := g.faker
	records := make([]dataset.Record, 0, g.cfg.Products)
	prices := make(map[int64]float64, g.cfg.Products)
	suppliers := make([]string, max(2, g.cfg.Products/10))
	for i := range suppliers {
		suppliers[i] = f.Company()
	}

	for i := 1; i <= g.cfg.Products; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d := g.defect(duplicate, blank, scruffy)
		id := int64(i)
		price := f.Price(2, 400)
		prices[id] = price
		rec := dataset.Record{
			"ProductID":     id,
			"ProductName":   f.ProductName(),
			"Category":      Choose(f, Categories),
			"UnitPrice":     price,
			"StockQuantity": f.Int64(0, 500),
			"Supplier":      Choose(f, suppliers),
		}
		switch d {
		case blank:
			rec[Choose(f, []string{"StockQuantity", "Supplier"})] = nil
		case scruffy:
			rec["Category"] = f.Scruff(rec["Category"].(string))
		}
		records = emit(records, rec, d)
	}
	ds, err := dataset.New(ProductColumns, records)
	return ds, prices, err
}

func (g *Generator) sales(ctx context.Context, prices map[int64]float64) (*dataset.Dataset, error) {
	f := g.faker
	progress := NewProgressReporter("sales", int64(g.cfg.Sales), int64(g.cfg.ProgressInterval))
	records := make([]dataset.Record, 0, g.cfg.Sales)

	for i := 1; i <= g.cfg.Sales; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := g.defect(duplicate, blank, scruffy, outlier, orphan)

		productID := f.Int64(1, int64(g.cfg.Products))
		quantity := float64(f.Int(1, 5))
		discount := ChooseWeighted(f, []float64{0, 5, 10, 15, 25}, []int{10, 4, 3, 2, 1})
		amount := roundCents(prices[productID] * quantity * (1 - discount/100))

		var campaign any
		if g.cfg.Campaigns > 0 && f.Chance(0.4) {
			campaign = f.Int64(1, int64(g.cfg.Campaigns))
		}

		rec := dataset.Record{
			"TransactionID":   int64(i),
			"SaleDate":        f.Date(g.cfg.Start, g.cfg.End).Format(dataset.DateLayout),
			"CustomerID":      f.Int64(1, int64(g.cfg.Customers)),
			"ProductID":       productID,
			"StoreID":         f.Int64(1, int64(g.cfg.Stores)),
			"CampaignID":      campaign,
			"SaleAmount":      amount,
			"DiscountPercent": discount,
			"PaymentType":     Choose(f, PaymentTypes),
		}
		switch d {
		case blank:
			rec[Choose(f, []string{"SaleAmount", "StoreID", "PaymentType"})] = nil
		case scruffy:
			rec["PaymentType"] = f.Scruff(rec["PaymentType"].(string))
		case outlier:
			rec["SaleAmount"] = roundCents(amount * f.Float64(40, 80))
		case orphan:
			rec["CustomerID"] = int64(g.cfg.Customers) + f.Int64(1, 1000)
		}
		records = emit(records, rec, d)
		progress.Update(1)
	}
	progress.Done()
	return dataset.New(SaleColumns, records)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ProgressReporter tracks and reports data generation progress.
type ProgressReporter struct {
	tableName        string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(tableName string, totalRows int64, interval int64) *ProgressReporter {
	if interval <= 0 {
		interval = 1
	}
	return &ProgressReporter{
		tableName:        tableName,
		totalRows:        totalRows,
		progressInterval: interval,
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rows int64) {
	oldRow := p.currentRow
	p.currentRow += rows

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := float64(p.currentRow) / float64(max(p.totalRows, 1)) * 100
		logging.Info().
			Str("table", p.tableName).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating rows")
	}
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("table", p.tableName).
		Int64("rows", p.currentRow).
		Msg("Generated file")
}
