package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediapool/internal/ingest"
	"mediapool/internal/mediaindex"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var sourceFlag string
	var suffixFlag string
	var copyFlag string
	var reportFlag bool
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Offload a camera card into a dated media pool bin",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newPrompter(cmd)

			user, err := selectUser(cfg, userFlag, p)
			if errors.Is(err, errAborted) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			if err != nil {
				return err
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			store := ctx.openJournal(cmd.ErrOrStderr())
			defer store.Close()

			ing, err := ingest.New(cfg, logger, ingest.WithJournal(store))
			if err != nil {
				return err
			}

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			source := strings.TrimSpace(sourceFlag)
			if source == "" {
				source = cfg.Paths.DailiesRoll
			}

			plan, err := ing.Plan(runCtx, user, source)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Card %s: %d files, %s\n", plan.Source, len(plan.Files), formatBytes(plan.TotalBytes))
			printRecentBins(out, plan.Recent)
			fmt.Fprintf(out, "Suggested bin: %s\n", plan.Suggested)

			binName, err := chooseBinName(plan, suffixFlag, p)
			if err != nil {
				return err
			}

			sel, ok, err := chooseSelection(plan, copyFlag, p, out)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted, nothing copied.")
				return nil
			}

			writeReport := reportFlag
			if !writeReport && len(plan.Duplicates) > 0 && p.interactive() {
				writeReport, err = p.yesNo("Write a duplicate report CSV?", false)
				if err != nil {
					return err
				}
			}
			if writeReport && len(plan.Duplicates) > 0 {
				reportPath, err := ing.WriteDuplicateReport(plan, binName)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Duplicate report: %s\n", reportPath)
			}

			files := len(plan.Uniques)
			bytes := mediaindex.TotalSize(plan.Uniques)
			if sel == ingest.CopyAll {
				files = len(plan.Files)
				bytes = plan.TotalBytes
			}

			if !yesFlag {
				if !p.interactive() {
					return errors.New("confirmation required (use --yes)")
				}
				confirmed, err := p.yesNo(fmt.Sprintf("Copy %d files (%s) into %s?", files, formatBytes(bytes), binName), true)
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(out, "Aborted, nothing copied.")
					return nil
				}
			}

			progressFn, stopProgress := newCopyProgress(out, "Copying "+binName, bytes)
			res, err := ing.Execute(runCtx, plan, binName, sel, progressFn)
			stopProgress()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Copied %d files (%s) into %s\n", res.Files, formatBytes(res.Bytes), res.Dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Card path (defaults to paths.dailies_roll)")
	cmd.Flags().StringVar(&suffixFlag, "suffix", "", "Optional bin name suffix")
	cmd.Flags().StringVar(&copyFlag, "copy", "", "Duplicate handling: unique or all")
	cmd.Flags().BoolVar(&reportFlag, "report", false, "Write a CSV listing duplicates and their pool locations")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the final confirmation")
	return cmd
}

func printRecentBins(out io.Writer, recent []ingest.BinStat) {
	if len(recent) == 0 {
		return
	}
	rows := make([][]string, 0, len(recent))
	for _, st := range recent {
		rows = append(rows, []string{st.Name, strconv.Itoa(st.Files), formatBytes(st.Bytes)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Recent bin", "Files", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
}

// chooseBinName settles the bin directory name. An explicit suffix flag (or a
// scripted run) skips the prompt; interactively the operator can retry until
// the suffix validates.
func chooseBinName(plan *ingest.Plan, suffixFlag string, p *prompter) (string, error) {
	suffix := strings.TrimSpace(suffixFlag)
	if suffix != "" || !p.interactive() {
		return plan.BinName(suffix)
	}
	for {
		answer, err := p.line(fmt.Sprintf("Bin suffix for %s (Enter for none): ", plan.Suggested))
		if err != nil {
			return "", err
		}
		name, err := plan.BinName(answer)
		if err != nil {
			fmt.Fprintln(p.out, err)
			continue
		}
		return name, nil
	}
}

func chooseSelection(plan *ingest.Plan, copyFlag string, p *prompter, out io.Writer) (ingest.Selection, bool, error) {
	if len(plan.Duplicates) == 0 {
		return ingest.CopyUnique, true, nil
	}

	fmt.Fprintf(out, "%d of %d files already exist in the pool.\n", len(plan.Duplicates), len(plan.Files))

	switch strings.ToLower(strings.TrimSpace(copyFlag)) {
	case "unique":
		return ingest.CopyUnique, true, nil
	case "all":
		return ingest.CopyAll, true, nil
	case "":
	default:
		return 0, false, fmt.Errorf("invalid --copy value %q (use unique or all)", copyFlag)
	}

	if !p.interactive() {
		// Scripted runs skip known footage unless told otherwise.
		if len(plan.Uniques) == 0 {
			return 0, false, errors.New("every card file already exists in the pool (use --copy all to copy anyway)")
		}
		return ingest.CopyUnique, true, nil
	}

	if len(plan.Uniques) == 0 {
		fmt.Fprintln(out, "Every file on this card is already in the pool.")
		copyAll, err := p.yesNo("Copy everything anyway?", false)
		if err != nil || !copyAll {
			return 0, false, err
		}
		return ingest.CopyAll, true, nil
	}

	idx, ok, err := p.choose("How should duplicates be handled?", []string{
		fmt.Sprintf("Copy only the %d new files", len(plan.Uniques)),
		"Copy everything, duplicates included",
	})
	if err != nil || !ok {
		return 0, ok, err
	}
	if idx == 1 {
		return ingest.CopyAll, true, nil
	}
	return ingest.CopyUnique, true, nil
}
