package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediapool/internal/packager"
)

func newPackageCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var modeFlag string
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Collect unsent proxy folders into a dated sent bucket",
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

			opts := []packager.Option{packager.WithJournal(store)}
			if client, clientErr := ctx.rsyncClient(); clientErr == nil {
				opts = append(opts, packager.WithRsync(client))
			}
			pkg, err := packager.New(cfg, logger, opts...)
			if err != nil {
				return err
			}

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			plan, err := pkg.Plan(runCtx, user)
			if err != nil {
				return err
			}

			if len(plan.Skipped) > 0 {
				fmt.Fprintf(out, "Already sent: %s\n", strings.Join(plan.Skipped, ", "))
			}
			if len(plan.Candidates) == 0 {
				fmt.Fprintln(out, "Nothing to package; every proxy folder is already in a sent bucket.")
				return nil
			}
			fmt.Fprintf(out, "New folders (%d):\n", len(plan.Candidates))
			for _, name := range plan.Candidates {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintf(out, "Bucket: %s\n", plan.Bucket)

			mode, ok, err := selectTransferMode(modeFlag, p)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			if !yesFlag {
				if !p.interactive() {
					return errors.New("confirmation required (use --yes)")
				}
				confirmed, err := p.yesNo(fmt.Sprintf("Package %d folders into %s?", len(plan.Candidates), plan.Bucket), true)
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			res, err := pkg.Execute(runCtx, plan, mode)
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			for _, tr := range res.Transfers {
				if tr.Err != nil {
					fmt.Fprintln(out, renderStatusLine(tr.Name, statusWarn, tr.Err.Error(), colorize))
					continue
				}
				fmt.Fprintln(out, renderStatusLine(tr.Name, statusOK, "placed at "+tr.Dest, colorize))
			}
			fmt.Fprintf(out, "Sent %d of %d folders into %s\n", res.Sent, len(plan.Candidates), res.Path)
			if plan.RequestURL != "" {
				fmt.Fprintf(out, "Share the request link: %s\n", plan.RequestURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "Transfer mode: hardlink, cp or rsync")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func selectTransferMode(flagValue string, p *prompter) (packager.Mode, bool, error) {
	flagValue = strings.TrimSpace(flagValue)
	if flagValue != "" {
		mode, err := packager.ParseMode(flagValue)
		if err != nil {
			return 0, false, err
		}
		return mode, true, nil
	}
	if !p.interactive() {
		// Hardlink is the default: free on the same filesystem.
		return packager.ModeHardlink, true, nil
	}

	idx, ok, err := p.choose("Transfer mode:", []string{
		"Hardlink (instant, same filesystem only)",
		"Copy",
		"Rsync",
	})
	if err != nil || !ok {
		return 0, ok, err
	}
	switch idx {
	case 1:
		return packager.ModeCopy, true, nil
	case 2:
		return packager.ModeRsync, true, nil
	default:
		return packager.ModeHardlink, true, nil
	}
}
