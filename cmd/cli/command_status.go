package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
)

func newStatusCmd(conn *connOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current or most recent crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(conn, func(client *crawlv1.Client) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				defer cancel()
				snap, err := client.Status(ctx)
				if err != nil {
					return err
				}
				printStatusTable(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
}
