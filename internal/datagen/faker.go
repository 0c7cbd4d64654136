//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates synthetic raw sales files, including the kind
// of defects the cleaning stage exists to remove.
package datagen

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Regions, segments, categories and payment types used in generated files.
var (
	Regions      = []string{"East", "West", "North", "South", "Central"}
	Segments     = []string{"Consumer", "Corporate", "Home Office"}
	Categories   = []string{"Electronics", "Clothing", "Sports", "Home", "Grocery", "Toys"}
	PaymentTypes = []string{"Credit", "Debit", "Cash", "Gift Card"}
)

// Faker provides fake data generation using gofakeit.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// Name generates a random full name.
func (f *Faker) Name() string {
	return f.faker.Name()
}

// Company generates a random company name.
func (f *Faker) Company() string {
	return f.faker.Company()
}

// ProductName generates a random product name.
func (f *Faker) ProductName() string {
	return f.faker.ProductName()
}

// Price generates a random price between min and max.
func (f *Faker) Price(min, max float64) float64 {
	return f.faker.Price(min, max)
}

// Date generates a random date within a range, truncated to the day.
func (f *Faker) Date(start, end time.Time) time.Time {
	d := f.faker.DateRange(start, end)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Int generates a random integer between min and max (inclusive).
func (f *Faker) Int(min, max int) int {
	return f.faker.IntRange(min, max)
}

// Int64 generates a random int64 between min and max (inclusive).
func (f *Faker) Int64(min, max int64) int64 {
	return int64(f.faker.IntRange(int(min), int(max)))
}

// Float64 generates a random float64 between min and max.
func (f *Faker) Float64(min, max float64) float64 {
	return f.faker.Float64Range(min, max)
}

// Chance reports true with probability p.
func (f *Faker) Chance(p float64) bool {
	return p > 0 && f.Float64(0, 1) < p
}

// Choose returns a random element from the given slice.
func Choose[T any](f *Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.Int(0, len(items)-1)]
}

// ChooseWeighted returns a random element based on weights.
func ChooseWeighted[T any](f *Faker, items []T, weights []int) T {
	if len(items) == 0 || len(weights) == 0 {
		var zero T
		return zero
	}

	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}

	r := f.Int(1, totalWeight)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}

// Scruff returns s with the casing and padding mistakes found in
// hand-entered data.
func (f *Faker) Scruff(s string) string {
	switch f.Int(0, 3) {
	case 0:
		return strings.ToUpper(s)
	case 1:
		return strings.ToLower(s)
	case 2:
		return "  " + s
	default:
		return s + " "
	}
}
