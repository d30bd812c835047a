package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediapool/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				fmt.Fprintln(out, "Run journal is disabled; enable [journal] in the config to record runs.")
				return nil
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Kind,
					run.User,
					run.Detail,
					run.Status,
					runDuration(run),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Kind", "User", "Detail", "Status", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func runDuration(run journal.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	d := run.FinishedAt.Sub(run.StartedAt)
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
