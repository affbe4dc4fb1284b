package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local contact store counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	database, err := openLocalDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	counts := []struct {
		label string
		query string
	}{
		{"people", "SELECT COUNT(*) FROM people WHERE deleted = 0"},
		{"dirty", "SELECT COUNT(*) FROM people WHERE deleted = 0 AND dirty = 1"},
		{"starred", "SELECT COUNT(*) FROM people WHERE deleted = 0 AND starred = 1"},
		{"groups", "SELECT COUNT(*) FROM groups"},
		{"photos", "SELECT COUNT(*) FROM photos WHERE data IS NOT NULL"},
	}

	for _, c := range counts {
		var n int64
		if err := database.QueryRow(c.query).Scan(&n); err != nil {
			return fmt.Errorf("failed to count %s: %w", c.label, err)
		}
		fmt.Printf("%-8s %d\n", c.label, n)
	}
	return nil
}
