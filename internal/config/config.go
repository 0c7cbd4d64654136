//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-salesdw.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-salesdw/internal/datagen"
	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
	"github.com/pgEdge/pgedge-salesdw/internal/scrub"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for pgedge-salesdw.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// Storage selects the warehouse backend: postgres or memory.
	Storage string `mapstructure:"storage"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// DataDir holds the raw/ and prepared/ file directories.
	DataDir string `mapstructure:"data_dir"`

	// MetricsFile, when set, receives the run's Prometheus metrics in
	// text format.
	MetricsFile string `mapstructure:"metrics_file"`

	Generate GenerateConfig `mapstructure:"generate"`
	Clean    CleanConfig    `mapstructure:"clean"`
	Load     LoadConfig     `mapstructure:"load"`
	Analyze  AnalyzeConfig  `mapstructure:"analyze"`
}

// GenerateConfig sizes the synthetic raw files.
type GenerateConfig struct {
	Customers int     `mapstructure:"customers"`
	Products  int     `mapstructure:"products"`
	Sales     int     `mapstructure:"sales"`
	Stores    int     `mapstructure:"stores"`
	Campaigns int     `mapstructure:"campaigns"`
	StartDate string  `mapstructure:"start_date"`
	EndDate   string  `mapstructure:"end_date"`
	DirtRate  float64 `mapstructure:"dirt_rate"`
	Seed      uint64  `mapstructure:"seed"`
}

// CleanConfig holds one cleaning pipeline per entity file.
type CleanConfig struct {
	Entities map[string]EntityCleanConfig `mapstructure:"entities"`
}

// EntityCleanConfig configures the cleaning of one entity file.
type EntityCleanConfig struct {
	// Format lists string columns to trim and lowercase.
	Format []string `mapstructure:"format"`

	// Conversions lists column type conversions.
	Conversions []ConversionConfig `mapstructure:"conversions"`

	// Identity restricts duplicate detection to these columns; empty
	// compares whole rows.
	Identity []string `mapstructure:"identity"`

	Missing MissingConfig `mapstructure:"missing"`

	// Outliers enables IQR fencing of numeric columns.
	Outliers bool `mapstructure:"outliers"`

	// OutlierSkip lists numeric columns that are never fenced.
	OutlierSkip []string `mapstructure:"outlier_skip"`
}

// ConversionConfig converts one column to a type
// (integer, float, string, date, categorical).
type ConversionConfig struct {
	Column string `mapstructure:"column"`
	Type   string `mapstructure:"type"`
}

// MissingConfig is the missing-value policy of an entity.
type MissingConfig struct {
	// Mode is drop, fill or empty to skip the step.
	Mode string `mapstructure:"mode"`

	// Default fills every column without an entry in Fill.
	Default any `mapstructure:"default"`

	// Fill holds per-column defaults.
	Fill []FillConfig `mapstructure:"fill"`
}

// FillConfig is the fill value of one column.
type FillConfig struct {
	Column string `mapstructure:"column"`
	Value  any    `mapstructure:"value"`
}

// LoadConfig configures the warehouse loader.
type LoadConfig struct {
	// Connections is the maximum number of database connections.
	Connections int `mapstructure:"connections"`

	// BatchSize is the number of rows per insert.
	BatchSize int `mapstructure:"batch_size"`

	// Mappings replace the default source-to-warehouse column renames
	// of a table.
	Mappings map[string][]warehouse.Rename `mapstructure:"mappings"`
}

// AnalyzeConfig configures the aggregate queries.
type AnalyzeConfig struct {
	// Workers is the number of goroutines summing row shards.
	Workers int `mapstructure:"workers"`

	// OutputDir, when set, receives one CSV file per query.
	OutputDir string `mapstructure:"output_dir"`

	Queries []olap.Query `mapstructure:"queries"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	gen := datagen.DefaultConfig()
	return &Config{
		Storage:  StoragePostgres,
		LogLevel: "info",
		DataDir:  "data",
		Generate: GenerateConfig{
			Customers: gen.Customers,
			Products:  gen.Products,
			Sales:     gen.Sales,
			Stores:    gen.Stores,
			Campaigns: gen.Campaigns,
			StartDate: gen.Start.Format(dataset.DateLayout),
			EndDate:   gen.End.Format(dataset.DateLayout),
			DirtRate:  gen.DirtRate,
		},
		Clean: CleanConfig{Entities: DefaultCleanEntities()},
		Load: LoadConfig{
			Connections: 4,
			BatchSize:   warehouse.DefaultBatchSize,
		},
		Analyze: AnalyzeConfig{
			Workers: 1,
			Queries: DefaultQueries(),
		},
	}
}

// DefaultCleanEntities returns the cleaning rules for the raw files.
func DefaultCleanEntities() map[string]EntityCleanConfig {
	return map[string]EntityCleanConfig{
		warehouse.Customers: {
			Format:      []string{"Region", "CustomerSegment"},
			Conversions: []ConversionConfig{{Column: "JoinDate", Type: "date"}},
			Missing:     MissingConfig{Mode: string(scrub.DropRow)},
			Outliers:    true,
			OutlierSkip: []string{"CustomerID"},
		},
		warehouse.Products: {
			Format: []string{"Category"},
			Missing: MissingConfig{
				Mode: string(scrub.Fill),
				Fill: []FillConfig{
					{Column: "StockQuantity", Value: 0},
					{Column: "Supplier", Value: "unknown"},
				},
			},
			Outliers:    true,
			OutlierSkip: []string{"ProductID"},
		},
		warehouse.Sales: {
			Format:      []string{"PaymentType"},
			Conversions: []ConversionConfig{{Column: "SaleDate", Type: "date"}},
			Missing: MissingConfig{
				Mode: string(scrub.Fill),
				Fill: []FillConfig{
					{Column: "CampaignID", Value: 0},
					{Column: "DiscountPercent", Value: 0},
					{Column: "PaymentType", Value: "unknown"},
				},
			},
			Outliers:    true,
			OutlierSkip: []string{"TransactionID", "CustomerID", "ProductID", "StoreID", "CampaignID"},
		},
	}
}

// DefaultQueries returns the 2025 sales analysis: category by store,
// monthly category trend and a year-month-day drilldown.
func DefaultQueries() []olap.Query {
	year := func() []olap.Predicate {
		return []olap.Predicate{{Column: olap.YearColumn, Value: 2025}}
	}
	return []olap.Query{
		{
			Name:       "sales_by_category_store",
			Kind:       olap.KindDice,
			Where:      year(),
			Dimensions: []string{olap.CategoryColumn, "store_id"},
			Measure:    "sale_amount",
		},
		{
			Name:       "sales_by_category_month",
			Kind:       olap.KindTrend,
			Where:      year(),
			Dimensions: []string{olap.MonthColumn, olap.CategoryColumn},
			Measure:    "sale_amount",
		},
		{
			Name:       "sales_drilldown",
			Kind:       olap.KindDrilldown,
			Where:      year(),
			Dimensions: []string{olap.YearColumn, olap.MonthColumn, olap.DayColumn, olap.CategoryColumn},
			Measure:    "sale_amount",
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-salesdw.yaml
// 3. ~/.config/pgedge-salesdw/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-salesdw")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-salesdw"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings shared by every command that opens the
// warehouse.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.Connection == "" {
			return fmt.Errorf("connection string is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage must be '%s' or '%s', got '%s'", StoragePostgres, StorageMemory, c.Storage)
	}
	return nil
}

// ValidateGenerate checks configuration required for the generate command.
func (c *Config) ValidateGenerate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	_, err := c.GeneratorConfig()
	return err
}

// ValidateClean checks configuration required for the clean command.
func (c *Config) ValidateClean() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	_, err := c.Pipelines()
	return err
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Load.Connections < 1 {
		return fmt.Errorf("load.connections must be at least 1")
	}
	if c.Load.BatchSize < 1 {
		return fmt.Errorf("load.batch_size must be at least 1")
	}
	for table := range c.Load.Mappings {
		if _, ok := warehouse.DefaultSchema().Table(table); !ok {
			return fmt.Errorf("load.mappings: unknown table '%s'", table)
		}
	}
	return nil
}

// ValidateAnalyze checks configuration required for the analyze command.
func (c *Config) ValidateAnalyze() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Analyze.Workers < 1 {
		return fmt.Errorf("analyze.workers must be at least 1")
	}
	if len(c.Analyze.Queries) == 0 {
		return fmt.Errorf("analyze.queries must not be empty")
	}
	for _, q := range c.Analyze.Queries {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRun checks configuration required for the run command, which
// chains every stage.
func (c *Config) ValidateRun() error {
	for _, validate := range []func() error{c.ValidateClean, c.ValidateLoad, c.ValidateAnalyze} {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// GeneratorConfig converts the generate section.
func (c *Config) GeneratorConfig() (datagen.Config, error) {
	g := datagen.DefaultConfig()
	g.Customers = c.Generate.Customers
	g.Products = c.Generate.Products
	g.Sales = c.Generate.Sales
	g.Stores = c.Generate.Stores
	g.Campaigns = c.Generate.Campaigns
	g.DirtRate = c.Generate.DirtRate
	g.Seed = c.Generate.Seed

	var err error
	if g.Start, err = time.Parse(dataset.DateLayout, c.Generate.StartDate); err != nil {
		return g, fmt.Errorf("generate.start_date: %w", err)
	}
	if g.End, err = time.Parse(dataset.DateLayout, c.Generate.EndDate); err != nil {
		return g, fmt.Errorf("generate.end_date: %w", err)
	}
	return g, g.Validate()
}

// Pipelines converts the clean section into one pipeline per entity.
func (c *Config) Pipelines() (map[string]scrub.Pipeline, error) {
	pipelines := make(map[string]scrub.Pipeline, len(c.Clean.Entities))
	for entity, ec := range c.Clean.Entities {
		if _, ok := warehouse.DefaultSchema().Table(entity); !ok {
			return nil, fmt.Errorf("clean.entities: unknown entity '%s'", entity)
		}
		p := scrub.Pipeline{
			Name:        entity,
			Format:      ec.Format,
			Identity:    ec.Identity,
			Outliers:    ec.Outliers,
			OutlierSkip: ec.OutlierSkip,
		}
		for _, conv := range ec.Conversions {
			t, err := dataset.ParseType(conv.Type)
			if err != nil {
				return nil, fmt.Errorf("clean.entities.%s: %w", entity, err)
			}
			p.Conversions = append(p.Conversions, scrub.Conversion{Column: conv.Column, Type: t})
		}

		switch scrub.MissingMode(ec.Missing.Mode) {
		case "":
		case scrub.DropRow, scrub.Fill:
			policy := &scrub.MissingPolicy{
				Mode:    scrub.MissingMode(ec.Missing.Mode),
				Default: ec.Missing.Default,
			}
			if len(ec.Missing.Fill) > 0 {
				policy.Columns = make(map[string]any, len(ec.Missing.Fill))
				for _, f := range ec.Missing.Fill {
					policy.Columns[f.Column] = f.Value
				}
			}
			if policy.Mode == scrub.Fill && policy.Default == nil && len(policy.Columns) == 0 {
				return nil, fmt.Errorf("clean.entities.%s: %w: fill mode requires a default value",
					entity, scrub.ErrInvalidConfig)
			}
			p.Missing = policy
		default:
			return nil, fmt.Errorf("clean.entities.%s: %w: unknown missing mode '%s'",
				entity, scrub.ErrInvalidConfig, ec.Missing.Mode)
		}
		pipelines[entity] = p
	}
	return pipelines, nil
}

// Loader builds the warehouse loader, applying configured mappings over
// the defaults.
func (c *Config) Loader() *warehouse.Loader {
	l := warehouse.NewLoader(warehouse.DefaultSchema())
	l.BatchSize = c.Load.BatchSize
	for table, renames := range c.Load.Mappings {
		l.Mappings[table] = warehouse.NewMapping(renames...)
	}
	return l
}
