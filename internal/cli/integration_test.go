//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration

// Integration tests for the commands that need PostgreSQL.
// Run with: go test -tags=integration ./internal/cli/...

package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/testutil"
	"github.com/pgEdge/pgedge-salesdw/internal/warehouse"
)

func TestRequireSchema(t *testing.T) {
	pool := testutil.SetupTestDB(t, "cli_schema")
	ctx := context.Background()

	if _, err := requireSchema(ctx, pool); err == nil || !strings.Contains(err.Error(), "create") {
		t.Fatalf("Expected a hint to run create, got %v", err)
	}

	schema := warehouse.DefaultSchema()
	if err := warehouse.CreateSchema(ctx, db.NewWarehouse(pool, schema), schema); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	created, err := requireSchema(ctx, pool)
	if err != nil {
		t.Fatalf("requireSchema failed: %v", err)
	}
	if created == "" {
		t.Error("Expected schema creation time")
	}
}

func TestLoadWithoutSchema(t *testing.T) {
	pool := testutil.SetupTestDB(t, "cli_load")

	_, err := execute(t, "load",
		"--connection", testutil.ConnString(pool),
		"--data-dir", t.TempDir(),
		"--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "pgedge-salesdw create") {
		t.Errorf("Expected load to ask for create, got %v", err)
	}
}
