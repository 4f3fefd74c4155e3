package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func newWatchCmd(conn *connOptions) *cobra.Command {
	var req crawlv1.WatchRequest
	var untilDone bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print crawl events, replaying stored ones first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(conn, func(client *crawlv1.Client) error {
				return watchEvents(cmd, client, req, untilDone)
			})
		},
	}
	cmd.Flags().Uint64Var(&req.After, "after", 0, "skip events up to this sequence number")
	cmd.Flags().StringVar(&req.RunID, "run", "", "only show events of this run")
	cmd.Flags().BoolVarP(&req.Follow, "follow", "f", false, "keep printing new events")
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "with --follow, return once the run reaches Completed or Failed")
	return cmd
}

// watchEvents prints events until the stream ends, or with untilDone until
// a terminal status event arrives.
func watchEvents(cmd *cobra.Command, client *crawlv1.Client, req crawlv1.WatchRequest, untilDone bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stream, err := client.Watch(ctx, req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for {
		e, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatEvent(e))
		if untilDone && e.Kind == lib.EventKindStatus && e.Status.State.IsTerminal() {
			if e.Status.State == lib.RunStateFailed {
				return failedError(e.Status.Failure)
			}
			return nil
		}
	}
}

func failedError(f *lib.Failure) error {
	if f == nil {
		return errors.New("crawl failed")
	}
	return fmt.Errorf("crawl failed: %s", f)
}
