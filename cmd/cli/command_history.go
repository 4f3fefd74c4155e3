package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/history"
)

func defaultHistoryDir() string {
	return filepath.Join(xdg.DataHome, "crawl-runner")
}

func newHistoryCmd(conn *connOptions) *cobra.Command {
	var limit int
	var local bool
	var dir string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished crawls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			if local {
				store, err := history.Open(dir)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if limit <= 0 {
					limit = 20
				}
				runs, err := store.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				printHistoryTable(cmd.OutOrStdout(), runs)
				return nil
			}

			return withClient(conn, func(client *crawlv1.Client) error {
				runs, err := client.History(ctx, limit)
				if err != nil {
					return err
				}
				printHistoryTable(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of runs to list (default: server setting)")
	cmd.Flags().BoolVar(&local, "local", false, "read the history database directly instead of asking the daemon")
	cmd.Flags().StringVar(&dir, "history-dir", defaultHistoryDir(), "history directory used with --local")
	return cmd
}
