// compression-bench-tasker runs the polling worker pool that claims
// attempts, drives the compress->evaluate pipeline, and records results,
// plus standalone admin-seed and test-ingestion commands (serve also
// seeds the administrator at startup). See cmd/tasker/serve.go,
// seed_admin.go, ingest_tests.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasker",
		Short: "Compression benchmark tasker",
		Long: `tasker runs the benchmark's background worker pool.

  tasker serve          Run the polling worker pool and health/metrics server
  tasker seed-admin     Create the default administrator if none exists
  tasker ingest-tests   Bulk-load a JSON file of test cases into the database`,
	}

	cmd.PersistentFlags().String("config-dir", "./deploy/config", "Path to the directory holding an optional .env file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSeedAdminCmd())
	cmd.AddCommand(newIngestTestsCmd())

	return cmd
}
