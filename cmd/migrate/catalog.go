package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/storesync/backend/internal/infrastructure/catalogimport"
	"github.com/storesync/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// runSeed fills the source catalog tables with generated demo items
func runSeed(c *cli) error {
	if c.seedItems <= 0 {
		return fmt.Errorf("item count must be positive, got %d", c.seedItems)
	}
	items := persistence.FakeCatalog(persistence.FakeCatalogConfig{
		Seed:          c.seedValue,
		Items:         c.seedItems,
		VariableRatio: 0.3,
		NoSKURatio:    0.05,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := persistence.NewGormSourceCatalog(c.db.DB).Seed(ctx, items); err != nil {
		return fmt.Errorf("seed source catalog: %w", err)
	}
	c.log.Info("Source catalog seeded", zap.Int("items", len(items)), zap.Uint64("seed", c.seedValue))
	return nil
}

// runImport loads a source catalog CSV file. Any row error aborts the import
// before anything is written.
func runImport(c *cli) error {
	path, err := c.arg(0, "import <file.csv>")
	if err != nil {
		return err
	}
	sep := []rune(c.delimiter)
	if len(sep) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.delimiter)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := catalogimport.ReadCatalog(f, catalogimport.Options{Delimiter: sep[0]})
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if result.Errors.HasErrors() {
		for _, rowErr := range result.Errors.Errors() {
			c.log.Error("Invalid row",
				zap.Int("row", rowErr.Row),
				zap.String("column", rowErr.Column),
				zap.String("code", rowErr.Code),
				zap.String("message", rowErr.Message),
			)
		}
		c.log.Error("Import aborted",
			zap.Int("rows", result.Rows),
			zap.Int("errors", result.Errors.TotalCount()),
			zap.Bool("truncated", result.Errors.IsTruncated()),
		)
		return errors.New("catalog file has invalid rows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := persistence.NewGormSourceCatalog(c.db.DB).Seed(ctx, result.Items); err != nil {
		return fmt.Errorf("write source catalog: %w", err)
	}
	c.log.Info("Source catalog imported",
		zap.String("path", path),
		zap.Int("items", len(result.Items)),
		zap.Int("variations", result.VariationCount()),
	)
	return nil
}
