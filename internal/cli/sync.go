package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/contactsync/internal/config"
	"github.com/lherron/contactsync/internal/notify"
	"github.com/lherron/contactsync/internal/remote"
	"github.com/lherron/contactsync/internal/store"
	"github.com/lherron/contactsync/internal/syncd"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge a remote account snapshot into the local contact store",
	Long: `Sync reads a remote snapshot database and merges its people, groups,
and photo metadata into the local contact store. Remote rows are matched to
local rows by sync ID; local edits marked dirty are reconciled rather than
overwritten.`,
	RunE: runSync,
}

var (
	syncRemotePath string
	syncAccount    string
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncRemotePath, "remote", "", "Path to remote snapshot database (overrides CONTACTSYNC_REMOTE_DB_PATH)")
	syncCmd.Flags().StringVar(&syncAccount, "account", "", "Account the snapshot belongs to (overrides CONTACTSYNC_ACCOUNT)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if syncRemotePath != "" {
		cfg.RemoteDBPath = syncRemotePath
	}
	if syncAccount != "" {
		cfg.Account = syncAccount
	}
	if logLevelFlag := cmd.Flag("log-level").Value.String(); logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	if cfg.RemoteDBPath == "" {
		return fmt.Errorf("remote snapshot path not specified (use --remote flag or set CONTACTSYNC_REMOTE_DB_PATH)")
	}
	if cfg.Account == "" {
		return fmt.Errorf("account not specified (use --account flag or set CONTACTSYNC_ACCOUNT)")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := openLocalDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	source, err := remote.Open(cfg.RemoteDBPath, cfg.Account)
	if err != nil {
		return fmt.Errorf("failed to open remote snapshot: %w", err)
	}
	defer source.Close()

	var notifier *notify.Notifier
	if len(cfg.NotifyURLs) > 0 {
		notifier = notify.New(cfg.NotifyURLs, logger)
	}

	driver := syncd.New(store.New(database), source, notifier, logger)
	result, err := driver.Run(context.Background())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Persons: %d inserted, %d updated, %d resolved, %d deleted\n",
		result.PersonsInserted, result.PersonsUpdated, result.PersonsResolved, result.PersonsDeleted)
	fmt.Printf("Groups: %d merged, %d deleted\n", result.GroupsMerged, result.GroupsDeleted)
	if result.RowErrors > 0 {
		fmt.Printf("Row errors: %d (see log)\n", result.RowErrors)
	}
	return nil
}
