package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CreateIntelligens/voicetextpro/internal/store"
)

// newMigrateCmd creates the migrate command
func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply all pending database migrations to the configured PostgreSQL
database. Migrations are embedded in the binary, so no external files are
needed at runtime.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
			}

			if err := store.RunMigrations(databaseURL); err != nil {
				return err
			}

			fmt.Println("migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL. Can also use DATABASE_URL env var.")

	return cmd
}
