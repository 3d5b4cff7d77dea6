package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/klntsky/compression-bench/internal/admin"
	"github.com/klntsky/compression-bench/internal/config"
	"github.com/klntsky/compression-bench/internal/store"
)

func newSeedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the default administrator if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := cmd.Flags().GetString("config-dir")
			if err != nil {
				return err
			}
			return runSeedAdmin(cmd.Context(), configDir)
		},
	}
}

func runSeedAdmin(ctx context.Context, configDir string) error {
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

	if err := admin.Seed(ctx, repo, cfg.Admin, cfg.SaltRounds); err != nil {
		return fmt.Errorf("seeding administrator: %w", err)
	}

	fmt.Printf("administrator %q ready\n", cfg.Admin.Login)
	return nil
}
