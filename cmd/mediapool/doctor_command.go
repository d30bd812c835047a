package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mediapool/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, volumes and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			colorize := shouldColorize(out)
			failed := 0

			printSection(out, "Environment", colorize)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, line := range checkLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			for _, res := range results {
				if !res.Passed {
					failed++
				}
			}

			fmt.Fprintln(out)
			printSection(out, "External tools", colorize)
			statuses := preflight.CheckSystemDeps(cfg)
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}
			for _, st := range statuses {
				if !st.Available && !st.Optional {
					failed++
				}
			}

			fmt.Fprintln(out)
			printSection(out, "Camera card", colorize)
			probe := preflight.ProbeCard(cfg.Paths.DailiesRoll)
			kind := statusInfo
			if probe.Present {
				kind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Dailies card", kind, probe.Detail(), colorize))

			fmt.Fprintln(out)
			if failed == 1 {
				return fmt.Errorf("doctor found 1 problem")
			}
			if failed > 1 {
				return fmt.Errorf("doctor found %d problems", failed)
			}
			fmt.Fprintln(out, "Everything checks out.")
			return nil
		},
	}
}

func printSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}
