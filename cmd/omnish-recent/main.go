// Command omnish-recent queries the daemon's sqlite command index without
// going through the daemon process itself — it opens the database file
// directly, since the index is local state, not something that needs an
// RPC round trip.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnish-dev/omnish/internal/config"
	"github.com/omnish-dev/omnish/internal/index"
	"github.com/omnish-dev/omnish/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:   "omnish-recent",
		Short: "list recently run shell commands recorded by omnishd",
	}

	var limit int
	var sessionID string
	root.Flags().IntVarP(&limit, "limit", "n", 20, "number of commands to show")
	root.Flags().StringVarP(&sessionID, "session", "s", "", "show only this session's commands, oldest first")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		dataDir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		idx, err := index.Open(filepath.Join(dataDir, "index.db"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()

		var records []model.CommandRecord
		if sessionID != "" {
			records, err = idx.BySession(sessionID)
		} else {
			records, err = idx.Recent(limit)
		}
		if err != nil {
			return fmt.Errorf("query index: %w", err)
		}

		printRecords(records)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnish-recent:", err)
		os.Exit(1)
	}
}

func printRecords(records []model.CommandRecord) {
	for _, rec := range records {
		status := "running"
		if rec.ExitCode != nil {
			status = fmt.Sprintf("exit %d", *rec.ExitCode)
		}
		cwd := rec.CWD
		if cwd == "" {
			cwd = "?"
		}
		fmt.Printf("%s  %-20s %-8s %s\n",
			rec.StartedAt.Local().Format(time.Kitchen), cwd, status, rec.CommandLine)
	}
}
