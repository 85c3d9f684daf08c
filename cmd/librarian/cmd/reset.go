package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-librarian/librarian/internal/config"
	"github.com/go-librarian/librarian/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the index and every library database",
		Long: `Delete the index database, every per-library database, and every
vector store file under the cache directory. This does not touch
config.yml or downloaded models. Irreversible: pass --yes to confirm.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset (required)")

	return cmd
}

func runReset(cmd *cobra.Command, yes bool) error {
	out := output.New(cmd.OutOrStdout())

	if !yes {
		out.Warning("this deletes the index and every library database. Re-run with --yes to confirm.")
		return fmt.Errorf("reset requires --yes")
	}

	indexPath := config.GetIndexDBPath()
	matches, _ := filepath.Glob(indexPath + "*") // covers -wal/-shm sidecars
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", m, err)
		}
	}
	if err := os.RemoveAll(config.GetLibraryDBDir()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove library db dir: %w", err)
	}

	out.Success("reset complete: index and all libraries removed")
	return nil
}
