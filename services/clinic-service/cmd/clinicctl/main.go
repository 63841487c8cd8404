// Command clinicctl runs schema migrations, ledger reconciliation and health
// probes against a clinic deployment.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operate the clinic appointment engine",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string (env DATABASE_URL)")
	rootCmd.PersistentFlags().String("company", "", "Company (tenant) id (env CLINIC_COMPANY_ID)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(regenerateCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
