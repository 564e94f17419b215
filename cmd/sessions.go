package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/chunkdl/internal/output"
	"github.com/NamanBalaji/chunkdl/internal/progress"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/status"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List unfinished downloads that can be resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			repo, err := repository.NewBboltRepository(cfg.StateDB)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.FindAll()
			if err != nil {
				return err
			}

			printer := output.NewPrinter(cmd.OutOrStdout())
			if len(records) == 0 {
				printer.Info("No unfinished downloads")
				return nil
			}

			printer.Raw(output.Table([]string{"OUTPUT", "URI", "SIZE", "CHUNKS DONE", "UPDATED"}, sessionRows(records)))

			return nil
		},
	}
}

func sessionRows(records []*repository.SessionRecord) [][]string {
	rows := make([][]string, 0, len(records))

	for _, r := range records {
		done := 0
		for _, j := range r.Jobs {
			if j.State == status.Done {
				done++
			}
		}

		rows = append(rows, []string{
			r.OutputPath,
			r.URI,
			progress.FormatSize(r.TotalSize),
			fmt.Sprintf("%d/%d", done, len(r.Jobs)),
			r.UpdatedAt.Format(time.DateTime),
		})
	}

	return rows
}
