package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediapool/internal/config"
	"mediapool/internal/syncer"
)

// backSyncExampleLimit caps how many destination-only paths the confirmation
// prompt lists before collapsing the rest into a count.
const backSyncExampleLimit = 10

var syncModes = []struct {
	flag  string
	label string
	mode  syncer.Mode
}{
	{"media", "My media pool folder", syncer.ModeMediaUser},
	{"proxy", "My proxy pool folder", syncer.ModeProxyUser},
	{"both", "Both of my folders", syncer.ModeBothUser},
	{"all-media", "The entire media pool", syncer.ModeAllMedia},
	{"all-proxy", "The entire proxy pool", syncer.ModeAllProxy},
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var modeFlag string
	var backsyncFlag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror pools to a user's destination drive",
		Long: "Mirror the selected pool directories onto the user's destination drive,\n" +
			"then look for destination-only footage and offer to copy it back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newPrompter(cmd)

			user, err := selectUser(cfg, userFlag, p)
			if errors.Is(err, errAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err != nil {
				return err
			}

			mode, ok, err := selectSyncMode(modeFlag, p)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			switch strings.ToLower(strings.TrimSpace(backsyncFlag)) {
			case "":
			case "yes":
				cfg.Sync.Policy = config.PolicyAlways
			case "no":
				cfg.Sync.Policy = config.PolicyNever
			default:
				return fmt.Errorf("invalid --backsync value %q (use yes or no)", backsyncFlag)
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			client, err := ctx.rsyncClient()
			if err != nil {
				return err
			}
			store := ctx.openJournal(cmd.ErrOrStderr())
			defer store.Close()

			runner, err := syncer.New(cfg, client, logger,
				syncer.WithOutput(cmd.OutOrStdout()),
				syncer.WithJournal(store),
				syncer.WithPrompter(&backSyncPrompter{p: p}))
			if err != nil {
				return err
			}

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			results, runErr := runner.Run(runCtx, user, mode)
			printSyncResults(cmd.OutOrStdout(), results)
			return runErr
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Sync scope: media, proxy, both, all-media or all-proxy")
	cmd.Flags().StringVar(&backsyncFlag, "backsync", "", "Override the back-sync policy for this run (yes or no)")
	return cmd
}

func selectSyncMode(flagValue string, p *prompter) (syncer.Mode, bool, error) {
	flagValue = strings.ToLower(strings.TrimSpace(flagValue))
	if flagValue != "" {
		for _, m := range syncModes {
			if m.flag == flagValue {
				return m.mode, true, nil
			}
		}
		return 0, false, fmt.Errorf("unknown sync mode %q (use media, proxy, both, all-media or all-proxy)", flagValue)
	}
	if !p.interactive() {
		return 0, false, errors.New("sync mode is required (use --mode)")
	}

	options := make([]string, 0, len(syncModes))
	for _, m := range syncModes {
		options = append(options, m.label)
	}
	idx, ok, err := p.choose("What should be synced?", options)
	if err != nil || !ok {
		return 0, ok, err
	}
	return syncModes[idx].mode, true, nil
}

// backSyncPrompter surfaces destination-only files and asks whether to copy
// them back into the pool.
type backSyncPrompter struct {
	p *prompter
}

func (b *backSyncPrompter) ConfirmBackSync(task syncer.Task, missing []string) (bool, error) {
	out := b.p.out
	fmt.Fprintf(out, "\n%d files exist only on the destination drive (%s):\n", len(missing), task.Label)
	for i, path := range missing {
		if i == backSyncExampleLimit {
			fmt.Fprintf(out, "  (+%d more)\n", len(missing)-backSyncExampleLimit)
			break
		}
		fmt.Fprintf(out, "  %s\n", path)
	}
	if !b.p.interactive() {
		fmt.Fprintln(out, "Back-sync skipped (no terminal; use --backsync yes to copy them).")
		return false, nil
	}
	return b.p.yesNo("Copy them back into the pool?", false)
}

func printSyncResults(out io.Writer, results []syncer.Result) {
	if len(results) == 0 {
		return
	}
	colorize := shouldColorize(out)
	fmt.Fprintln(out)
	printSection(out, "Sync summary", colorize)
	for _, res := range results {
		kind := statusOK
		message := "mirrored"
		if res.ForwardErr != nil {
			kind = statusWarn
			message = fmt.Sprintf("rsync reported problems (%s)", res.ForwardLog)
		}
		fmt.Fprintln(out, renderStatusLine(res.Task.Label, kind, message, colorize))

		switch {
		case len(res.Missing) == 0:
		case res.BackSynced:
			fmt.Fprintln(out, renderStatusLine(res.Task.Label+" back", statusOK,
				fmt.Sprintf("%d files copied back", len(res.Missing)), colorize))
		case res.BackErr != nil:
			fmt.Fprintln(out, renderStatusLine(res.Task.Label+" back", statusWarn,
				fmt.Sprintf("back-sync failed (%s)", res.BackLog), colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(res.Task.Label+" back", statusInfo,
				fmt.Sprintf("%d destination-only files left in place", len(res.Missing)), colorize))
		}
	}
}
