package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/smart-library/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded SQL migrations to the database in DATABASE_URL and list
the migrations that are now applied. serve does this on startup as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		applied, err := postgres.GetGlobalPool().MigrationsApplied(ctx)
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(map[string]any{"applied": applied})
		}
		fmt.Printf("Database is up to date (%d migrations applied)\n", len(applied))
		for _, m := range applied {
			fmt.Printf("  %-24s %s\n", m.Version, m.AppliedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("json", false, "Output as JSON")
}
