package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
)

func newStartCmd(conn *connOptions) *cobra.Command {
	flags := &crawlFlags{}
	var follow bool
	cmd := &cobra.Command{
		Use:   "start --url <url> --selector <css> [flags]",
		Short: "Start a crawl on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return withClient(conn, func(client *crawlv1.Client) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				runID, err := client.Start(ctx, cfg)
				cancel()
				if err != nil {
					return err
				}
				// Print only the run ID unless asked to follow.
				fmt.Fprintln(cmd.OutOrStdout(), runID)
				if !follow {
					return nil
				}
				return watchEvents(cmd, client, crawlv1.WatchRequest{RunID: runID, Follow: true}, true)
			})
		},
	}
	addCrawlFlags(cmd, flags)
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the run's events until it ends")
	return cmd
}
