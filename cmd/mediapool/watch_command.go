package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediapool/internal/cardwatch"
	"mediapool/internal/config"
	"mediapool/internal/ingest"
	"mediapool/internal/journal"
	"mediapool/internal/preflight"
	"mediapool/internal/services"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var sourceFlag string
	var ingestFlag bool
	var onceFlag bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Wait for camera cards and report or offload them",
		Long: "Listen for partition insertions over netlink, poll for the card mount, and\n" +
			"either report its contents or offload new files into a fresh bin (--ingest).",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			user := strings.TrimSpace(userFlag)
			if ingestFlag {
				if user == "" {
					return errors.New("user is required with --ingest (use --user)")
				}
				resolved, err := lookupUser(cfg, user)
				if err != nil {
					return err
				}
				user = resolved
			}

			source := strings.TrimSpace(sourceFlag)
			if source == "" {
				source = cfg.Paths.DailiesRoll
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			store := ctx.openJournal(cmd.ErrOrStderr())
			defer store.Close()

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			events := make(chan cardwatch.Event, 4)
			mon := cardwatch.New(logger, func(_ context.Context, ev cardwatch.Event) {
				select {
				case events <- ev:
				default:
				}
			})
			if err := mon.Start(runCtx); err != nil {
				return err
			}
			defer mon.Stop()

			if mon.Running() {
				fmt.Fprintf(out, "Watching for camera cards at %s (Ctrl-C to stop)\n", source)
			} else {
				fmt.Fprintf(out, "Polling for a card at %s (Ctrl-C to stop)\n", source)
			}

			for {
				if err := awaitCard(runCtx, events, source, out); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				if err := handleCard(runCtx, out, cfg, logger, store, user, source, ingestFlag); err != nil {
					return err
				}
				if onceFlag {
					return nil
				}
				fmt.Fprintln(out, "Remove the card; watching for the next one.")
				if err := awaitCardGone(runCtx, source); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Card path (defaults to paths.dailies_roll)")
	cmd.Flags().BoolVar(&ingestFlag, "ingest", false, "Offload new files from each card into a fresh bin")
	cmd.Flags().BoolVar(&onceFlag, "once", false, "Handle one card and exit")
	return cmd
}

// awaitCard blocks until the card path becomes readable. Netlink insertions
// are surfaced as console notices while polling continues; the mount itself is
// what makes the card usable.
func awaitCard(ctx context.Context, events <-chan cardwatch.Event, source string, out io.Writer) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.ReadDir(source); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			probe := preflight.ProbePartition(ev.Device)
			fmt.Fprintf(out, "Partition %s inserted: %s\n", ev.Device, probe.Detail())
		case <-ticker.C:
		}
	}
}

func awaitCardGone(ctx context.Context, source string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := os.ReadDir(source); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleCard reports a mounted card and, when offload is set, copies its new
// files into a fresh unsuffixed bin for the given user.
func handleCard(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, store *journal.Store, user, source string, offload bool) error {
	probe := preflight.ProbeCard(source)
	fmt.Fprintf(out, "Card mounted: %s\n", probe.Detail())
	if !offload {
		return nil
	}

	ing, err := ingest.New(cfg, logger, ingest.WithJournal(store))
	if err != nil {
		return err
	}
	plan, err := ing.Plan(ctx, user, source)
	if err != nil {
		return err
	}
	binName, err := plan.BinName("")
	if err != nil {
		return err
	}
	res, err := ing.Execute(ctx, plan, binName, ingest.CopyUnique, nil)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			fmt.Fprintln(out, "No new files on this card.")
			return nil
		}
		return err
	}
	fmt.Fprintf(out, "Copied %d files (%s) into %s\n", res.Files, formatBytes(res.Bytes), res.Dest)
	return nil
}
