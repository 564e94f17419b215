package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/output"
	"github.com/NamanBalaji/chunkdl/internal/repository"
)

func newCleanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean OUTPUT_PATH",
		Short: "Remove the chunk files and stored session of an unfinished download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			store := chunk.NewStore(filepath.Dir(target), filepath.Base(target))

			removed, err := store.RemoveAll()
			if err != nil {
				return fmt.Errorf("failed to remove chunk files: %w", err)
			}

			repo, err := repository.NewBboltRepository(cfg.StateDB)
			if err != nil {
				return err
			}
			defer repo.Close()

			forgotten := true
			if err := repo.Delete(target); err != nil {
				if !errors.Is(err, repository.ErrSessionNotFound) {
					return err
				}

				forgotten = false
			}

			printer := output.NewPrinter(cmd.OutOrStdout())
			printer.Success("Removed %d chunk files for %s from %s", removed, filepath.Base(target), store.Dir())

			if forgotten {
				printer.Success("Deleted stored session for %s", target)
			}

			return nil
		},
	}
}
