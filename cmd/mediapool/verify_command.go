package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediapool/internal/verify"
)

// missingExampleLimit caps how many missing files the report lists before
// collapsing the rest into a count.
const missingExampleLimit = 10

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var sourceFlag string
	var orphanFlag bool
	var confirmDeleteFlag bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a card against the pool and wipe it when covered",
		Long: "Index the whole media pool, confirm every card file exists somewhere in it,\n" +
			"rescue anything missing into the user's _orphan folder, and only then erase\n" +
			"the card contents.",
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

			v, err := verify.New(cfg, logger, verify.WithJournal(store))
			if err != nil {
				return err
			}

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			source := strings.TrimSpace(sourceFlag)
			rep, err := v.Inspect(runCtx, user, source)
			if err != nil {
				return err
			}
			printVerifyReport(out, rep)

			if !rep.Safe() {
				rescue := orphanFlag
				if !rescue {
					if !p.interactive() {
						return errors.New("card files are missing from the pool (rerun with --orphan to rescue them)")
					}
					rescue, err = p.yesNo(fmt.Sprintf("Copy the %d missing files into %s?", len(rep.Missing), rep.OrphanDir), true)
					if err != nil {
						return err
					}
				}
				if !rescue {
					fmt.Fprintln(out, "Card left untouched.")
					return nil
				}

				progressFn, stopProgress := newCopyProgress(out, "Rescuing", rep.MissingBytes)
				rescued, err := v.CopyMissing(runCtx, rep, progressFn)
				stopProgress()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rescued %d files (%s) into %s\n", rescued.Files, formatBytes(rescued.Bytes), rescued.Dir)

				// Re-check so the wipe gate sees the rescued copies.
				rep, err = v.Inspect(runCtx, user, source)
				if err != nil {
					return err
				}
				if !rep.Safe() {
					return fmt.Errorf("%d files are still missing after the rescue copy", len(rep.Missing))
				}
			}

			fmt.Fprintln(out, "Every card file is covered by the pool.")

			if !confirmDeleteFlag {
				if !p.interactive() {
					return errors.New("confirmation required (use --confirm-delete)")
				}
				confirmed, err := p.literal(`Type "delete" to erase everything on the card: `, "delete")
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(out, "Card left untouched.")
					return nil
				}
			}

			wiped, err := v.Wipe(runCtx, rep)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d top-level entries from %s\n", wiped.Removed, rep.Source)
			if wiped.Failed > 0 {
				fmt.Fprintf(out, "WARN: %d entries could not be removed; check the card.\n", wiped.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Card path (defaults to paths.dailies_roll)")
	cmd.Flags().BoolVar(&orphanFlag, "orphan", false, "Rescue missing files into the pool without asking")
	cmd.Flags().BoolVar(&confirmDeleteFlag, "confirm-delete", false, "Erase the card without the typed confirmation")
	return cmd
}

func printVerifyReport(out io.Writer, rep *verify.Report) {
	fmt.Fprintf(out, "Card %s: %d files, %s (pool index: %d files)\n",
		rep.Source, len(rep.Files), formatBytes(rep.TotalBytes), rep.Indexed)
	fmt.Fprintf(out, "  in pool: %d\n", len(rep.Present))
	fmt.Fprintf(out, "  missing: %d (%s)\n", len(rep.Missing), formatBytes(rep.MissingBytes))
	for i, rec := range rep.Missing {
		if i == missingExampleLimit {
			fmt.Fprintf(out, "    (+%d more)\n", len(rep.Missing)-missingExampleLimit)
			break
		}
		fmt.Fprintf(out, "    %s\n", rec.Rel)
	}
}
