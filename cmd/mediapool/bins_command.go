package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediapool/internal/bins"
	"mediapool/internal/mediaindex"
)

func newBinsCommand(ctx *commandContext) *cobra.Command {
	var userFlag string
	var suggestFlag bool

	cmd := &cobra.Command{
		Use:   "bins",
		Short: "List a user's media pool bins",
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

			root := cfg.MediaPoolUser(user)
			list, err := bins.ListExisting(root)
			if err != nil {
				return fmt.Errorf("list bins in %s: %w", root, err)
			}

			if suggestFlag {
				parsed := make([]bins.Parsed, 0, len(list))
				for _, b := range list {
					parsed = append(parsed, b.Parsed)
				}
				fmt.Fprintln(out, bins.SuggestNext(time.Now().Format("20060102"), parsed))
				return nil
			}

			if len(list) == 0 {
				fmt.Fprintf(out, "No bins yet in %s\n", root)
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, b := range list {
				files, err := mediaindex.ListFiles(b.Path)
				if err != nil {
					return fmt.Errorf("scan bin %s: %w", b.Path, err)
				}
				rows = append(rows, []string{b.Name, strconv.Itoa(len(files)), formatBytes(mediaindex.TotalSize(files))})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Bin", "Files", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			if newest, ok := bins.Newest(list); ok {
				fmt.Fprintf(out, "Newest: %s\n", newest.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "Pool user name or selection letter")
	cmd.Flags().BoolVar(&suggestFlag, "suggest", false, "Print the next bin name for today and exit")
	return cmd
}
