package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/klntsky/compression-bench/internal/canon"
	"github.com/klntsky/compression-bench/internal/config"
	"github.com/klntsky/compression-bench/internal/models"
	"github.com/klntsky/compression-bench/internal/store"
)

// ingestRecord is one element of the input file's JSON array: an evaluation model plus the
// test case it targets. Payload is derived (canonicalized), never read
// directly from the file, so two records with differently-ordered JSON
// keys still dedupe against the same stored test.
type ingestRecord struct {
	Model       string          `json:"model"`
	TestCase    models.TestCase `json:"test_case"`
	IsActive    bool            `json:"is_active"`
	TotalTokens *int64          `json:"total_tokens,omitempty"`
}

func newIngestTestsCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "ingest-tests",
		Short: "Bulk-load a JSON file of test cases into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			configDir, err := cmd.Flags().GetString("config-dir")
			if err != nil {
				return err
			}
			return runIngestTests(cmd.Context(), configDir, path)
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "Path to a JSON file containing an array of test records")
	return cmd
}

func runIngestTests(ctx context.Context, configDir, path string) error {
	records, err := readIngestRecords(path)
	if err != nil {
		return err
	}

	rows := make([]models.Test, 0, len(records))
	for i, rec := range records {
		payload, err := canon.MarshalString(rec.TestCase)
		if err != nil {
			return fmt.Errorf("record %d: canonicalizing test case: %w", i, err)
		}
		rows = append(rows, models.Test{
			Model:       rec.Model,
			Payload:     payload,
			IsActive:    rec.IsActive,
			TotalTokens: rec.TotalTokens,
		})
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	repo, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("error closing database connection: %v", err)
		}
	}()

	inserted, err := repo.UpsertTests(ctx, rows)
	if err != nil {
		return fmt.Errorf("upserting tests: %w", err)
	}

	fmt.Printf("ingested %d new test(s), %d already present\n", inserted, len(rows)-inserted)
	return nil
}

func readIngestRecords(path string) ([]ingestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []ingestRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return records, nil
}
