package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/contactsync/internal/config"
	"github.com/lherron/contactsync/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending database migrations",
	Long: `Migrate applies any pending SQL migrations to the contact database.

Migrations are embedded in the contactsync binary and tracked via the
schema_migrations table. Each migration file is applied exactly once, so
this command is safe to run repeatedly.

Use --status to show which migrations are applied and which are pending.`,
	RunE: runMigrate,
}

var migrateStatus bool

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := openLocalDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if migrateStatus {
		return showMigrationStatus(database)
	}

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Println("Database is up to date.")
	return nil
}

func showMigrationStatus(database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	for _, m := range applied {
		fmt.Printf("applied  %s\n", m)
	}
	for _, m := range pending {
		fmt.Printf("pending  %s\n", m)
	}
	if len(pending) == 0 {
		fmt.Println("\nDatabase is up to date.")
	}
	return nil
}

// openLocalDB loads config, applies the --db override, and opens the
// local contact database.
func openLocalDB(cmd *cobra.Command) (*db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dbPathFlag := cmd.Flag("db").Value.String(); dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path not specified (use --db flag or set CONTACTSYNC_DB_PATH)")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}
