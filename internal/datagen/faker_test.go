//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/dataset"
)

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		v1 := f1.Int(0, 1000)
		v2 := f2.Int(0, 1000)
		if v1 != v2 {
			t.Errorf("Same seed produced different values: %d != %d", v1, v2)
		}
	}
}

func TestFakerDate(t *testing.T) {
	f := NewFaker()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		d := f.Date(start, end)
		if d.Before(start) || d.After(end) {
			t.Errorf("Date %v outside range", d)
		}
		if d.Hour() != 0 || d.Minute() != 0 || d.Location() != time.UTC {
			t.Errorf("Expected UTC midnight, got %v", d)
		}
	}
}

func TestChoose(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		chosen := Choose(f, Regions)
		found := false
		for _, r := range Regions {
			if r == chosen {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Choose returned item not in slice: %s", chosen)
		}
	}

	var empty []string
	if chosen := Choose(f, empty); chosen != "" {
		t.Errorf("Choose on empty slice should return zero value, got: %s", chosen)
	}
}

func TestChooseWeighted(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c"}
	weights := []int{1, 2, 7} // c should be chosen ~70% of the time

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		counts[ChooseWeighted(f, items, weights)]++
	}

	// c should be most common
	if counts["c"] < counts["a"] || counts["c"] < counts["b"] {
		t.Errorf("Weighted choice distribution unexpected: %v", counts)
	}
}

func TestScruff(t *testing.T) {
	f := NewFakerWithSeed(7)
	for i := 0; i < 20; i++ {
		s := f.Scruff("East")
		if strings.ToLower(strings.TrimSpace(s)) != "east" {
			t.Errorf("Scruff changed more than case and padding: %q", s)
		}
	}
}

func TestChance(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		if f.Chance(0) {
			t.Fatal("Chance(0) returned true")
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"no customers", func(c *Config) { c.Customers = 0 }, true},
		{"no stores", func(c *Config) { c.Stores = 0 }, true},
		{"reversed dates", func(c *Config) { c.Start, c.End = c.End, c.Start }, true},
		{"dirt above one", func(c *Config) { c.DirtRate = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateClean(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Customers, cfg.Products, cfg.Sales = 20, 5, 100
	cfg.DirtRate = 0
	cfg.Seed = 42

	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	b, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if b.Customers.Len() != 20 || b.Products.Len() != 5 || b.Sales.Len() != 100 {
		t.Fatalf("Unexpected sizes %d/%d/%d", b.Customers.Len(), b.Products.Len(), b.Sales.Len())
	}
	for i, r := range b.Sales.Records() {
		cid := r["CustomerID"].(int64)
		if cid < 1 || cid > 20 {
			t.Errorf("Row %d: customer %d out of range", i, cid)
		}
		if r["SaleAmount"] == nil {
			t.Errorf("Row %d: missing amount in a clean batch", i)
		}
		if _, err := time.Parse(dataset.DateLayout, r["SaleDate"].(string)); err != nil {
			t.Errorf("Row %d: bad date %v", i, r["SaleDate"])
		}
	}
	if len(b.Tables()) != 3 {
		t.Errorf("Expected 3 tables, got %d", len(b.Tables()))
	}
}

func TestGenerateDirty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Customers, cfg.Products, cfg.Sales = 50, 10, 500
	cfg.DirtRate = 1
	cfg.Seed = 3

	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	b, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// Every row carries a defect, so some rows must have been doubled.
	if b.Sales.Len() <= 500 {
		t.Errorf("Expected duplicated sales rows, got %d rows", b.Sales.Len())
	}
}

func TestGenerateCancelled(t *testing.T) {
	g, err := NewGenerator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
