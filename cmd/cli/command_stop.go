package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
)

func newStopCmd(conn *connOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [reason...]",
		Short: "Stop the running crawl",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(conn, func(client *crawlv1.Client) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				defer cancel()
				return client.Stop(ctx, strings.Join(args, " "))
			})
		},
	}
}
