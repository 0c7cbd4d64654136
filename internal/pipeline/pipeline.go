//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the warehouse stages over a data directory:
// raw files are cleaned into prepared files, prepared files are loaded
// into the warehouse and the warehouse is analyzed into result files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
	"github.com/pgEdge/pgedge-salesdw/internal/scrub"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

// Subdirectories of a data directory.
const (
	RawDir      = "raw"
	PreparedDir = "prepared"
)

// Entities lists the entity files in load order.
var Entities = warehouse.LoadOrder

// RawFile returns the path of an entity's raw file.
func RawFile(dataDir, entity string) string {
	return filepath.Join(dataDir, RawDir, entity+"_data.csv")
}

// PreparedFile returns the path of an entity's cleaned file.
func PreparedFile(dataDir, entity string) string {
	return filepath.Join(dataDir, PreparedDir, entity+"_prepared.csv")
}

// WriteRaw writes generated tables as raw files.
func WriteRaw(dataDir string, tables map[string]*dataset.Dataset) error {
	for _, entity := range Entities {
		ds, ok := tables[entity]
		if !ok {
			continue
		}
		path := RawFile(dataDir, entity)
		if err := dataset.WriteCSVFile(path, ds); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		logging.Info().Str("file", path).Int("rows", ds.Len()).Msg("Wrote raw file")
	}
	return nil
}

// CleanResult is the outcome of cleaning one entity file.
type CleanResult struct {
	Entity string
	File   string
	Report scrub.Report
}

// Clean reads each raw file, runs the entity's pipeline and writes the
// prepared file. Entities without a pipeline only lose exact duplicate
// rows. A missing raw file is an error.
func Clean(ctx context.Context, dataDir string, pipelines map[string]scrub.Pipeline) ([]CleanResult, error) {
	log := logging.Stage("clean")
	var results []CleanResult

	for _, entity := range Entities {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		raw, err := dataset.ReadCSVFile(RawFile(dataDir, entity), dataset.ReadOptions{})
		if err != nil {
			return results, fmt.Errorf("clean %s: %w", entity, err)
		}

		p, ok := pipelines[entity]
		if !ok {
			p = scrub.Pipeline{}
		}
		if p.Name == "" {
			p.Name = entity
		}

		out, report, err := p.Run(raw)
		if err != nil {
			return results, fmt.Errorf("clean %s: %w", entity, err)
		}

		path := PreparedFile(dataDir, entity)
		if err := dataset.WriteCSVFile(path, out); err != nil {
			return results, fmt.Errorf("failed to write %s: %w", path, err)
		}

		log.Info().Str("entity", entity).Str("file", path).Msg("Wrote prepared file")
		results = append(results, CleanResult{Entity: entity, File: path, Report: report})
	}
	return results, nil
}

// ReadPrepared reads the prepared files that exist. At least one must.
func ReadPrepared(dataDir string) (map[string]*dataset.Dataset, error) {
	batches := make(map[string]*dataset.Dataset)
	for _, entity := range Entities {
		path := PreparedFile(dataDir, entity)
		ds, err := dataset.ReadCSVFile(path, dataset.ReadOptions{})
		if errors.Is(err, os.ErrNotExist) {
			logging.Warn().Str("file", path).Msg("Prepared file not found, skipping")
			continue
		}
		if err != nil {
			return nil, err
		}
		batches[entity] = ds
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("no prepared files in %s; run clean first", filepath.Join(dataDir, PreparedDir))
	}
	return batches, nil
}

// Load optionally recreates the warehouse schema, then loads batches.
func Load(ctx context.Context, h warehouse.Handle, loader *warehouse.Loader, batches map[string]*dataset.Dataset, create bool) ([]warehouse.LoadResult, error) {
	log := logging.Stage("load")

	if create {
		log.Info().Msg("Creating warehouse schema")
		if err := warehouse.CreateSchema(ctx, h, loader.Schema); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	results, err := loader.LoadAll(ctx, h, batches)
	if err != nil {
		return results, err
	}

	var inserted int
	for _, r := range results {
		inserted += r.Inserted
	}
	log.Info().
		Int("tables", len(results)).
		Int("inserted", inserted).
		Dur("duration", time.Since(start)).
		Msg("Warehouse loaded")
	return results, nil
}

// AnalyzeOptions configures Analyze.
type AnalyzeOptions struct {
	// Workers is the number of goroutines per aggregation.
	Workers int

	// OutputDir, when set, receives <query>.csv for every query.
	OutputDir string
}

// Analyze reads the sales cube from the warehouse and runs the queries
// in order. It stops at the first query that fails, including a
// consistency violation.
func Analyze(ctx context.Context, h warehouse.Handle, s *warehouse.Schema, queries []olap.Query, opts AnalyzeOptions) ([]*olap.Result, error) {
	cube, err := olap.ReadSalesCube(ctx, h, s)
	if err != nil {
		return nil, err
	}
	return RunQueries(ctx, cube, queries, opts)
}

// RunQueries runs the queries against a cube.
func RunQueries(ctx context.Context, cube *dataset.Dataset, queries []olap.Query, opts AnalyzeOptions) ([]*olap.Result, error) {
	log := logging.Stage("analyze")
	workers := max(opts.Workers, 1)

	results := make([]*olap.Result, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := olap.Run(cube, q, olap.WithWorkers(workers))
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if opts.OutputDir != "" {
			path, err := writeResult(opts.OutputDir, res)
			if err != nil {
				return results, err
			}
			log.Info().Str("query", q.Name).Str("file", path).Msg("Wrote aggregate")
		}
	}
	return results, nil
}

func writeResult(dir string, res *olap.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, res.Query.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := res.Table.WriteCSV(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}
