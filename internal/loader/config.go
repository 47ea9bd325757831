package loader

import (
	"fmt"
	"slices"
	"strings"
)

// Config describes how one entity stream is applied to its table.
type Config struct {
	Table           string   // Destination table
	Columns         []string // Stream column order, one per row field
	ConflictColumns []string // Natural key used by the upsert conflict target
	BatchSize       int      // Rows per multi-row statement
	Upsert          bool     // Update UpsertColumns when the key already exists
	UpsertColumns   []string // Columns rewritten on conflict
}

// Validate checks the configuration independent of any sink.
// Returns an error describing all validation failures.
func (c Config) Validate() error {
	var errs []string

	if c.Table == "" {
		errs = append(errs, "table is required")
	}
	if len(c.Columns) == 0 {
		errs = append(errs, "at least one column is required")
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("batch size (%d) must be positive", c.BatchSize))
	}
	if c.Upsert {
		if len(c.ConflictColumns) == 0 {
			errs = append(errs, "upsert requires conflict columns")
		}
		if len(c.UpsertColumns) == 0 {
			errs = append(errs, "upsert requires at least one update column")
		}
	}
	for _, col := range c.ConflictColumns {
		if !slices.Contains(c.Columns, col) {
			errs = append(errs, fmt.Sprintf("conflict column %q is not loaded", col))
		}
	}
	for _, col := range c.UpsertColumns {
		if !slices.Contains(c.Columns, col) {
			errs = append(errs, fmt.Sprintf("upsert column %q is not loaded", col))
		}
		if slices.Contains(c.ConflictColumns, col) {
			errs = append(errs, fmt.Sprintf("upsert column %q is part of the conflict key", col))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("loader config %q invalid:\n  - %s", c.Table, strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkParams ensures a full batch fits into one statement for d.
func (c Config) checkParams(d Dialect) error {
	if n := c.BatchSize * len(c.Columns); n > d.MaxParams() {
		return fmt.Errorf("loader config %q: batch of %d rows needs %d parameters, %s allows %d",
			c.Table, c.BatchSize, n, d, d.MaxParams())
	}
	return nil
}

// conflictIndexes returns the positions of the conflict columns in a row.
func (c Config) conflictIndexes() []int {
	idx := make([]int, len(c.ConflictColumns))
	for i, col := range c.ConflictColumns {
		idx[i] = slices.Index(c.Columns, col)
	}
	return idx
}
