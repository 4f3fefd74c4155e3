package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/event_stream"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/history"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/supervisor"
)

type runOptions struct {
	crawler    string
	timeout    time.Duration
	retries    int
	stopGrace  time.Duration
	historyDir string
	verbose    bool
}

func newRunCmd() *cobra.Command {
	flags := &crawlFlags{}
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run --url <url> --selector <css> [flags]",
		Short: "Run one crawl in this process and print its events",
		Long: "Run supervises the crawler without a daemon. Ctrl-C stops the crawl " +
			"the same way the stop command would.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cmd, cfg, opts)
		},
	}
	addCrawlFlags(cmd, flags)
	fs := cmd.Flags()
	fs.StringVar(&opts.crawler, "crawler", strings.Join(supervisor.DefaultCrawlerCommand, " "), "crawler command; crawl arguments are appended")
	fs.DurationVar(&opts.timeout, "timeout", supervisor.DefaultTimeout, "time limit per attempt (0 disables)")
	fs.IntVar(&opts.retries, "retries", supervisor.DefaultRetryPolicy.MaxRetries, "relaunches after a non-zero exit")
	fs.DurationVar(&opts.stopGrace, "stop-grace", supervisor.DefaultStopGrace, "wait after SIGTERM before SIGKILL")
	fs.StringVar(&opts.historyDir, "history-dir", defaultHistoryDir(), "record the run here; empty disables")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log supervisor internals to stderr")
	return cmd
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg lib.CrawlConfig, opts runOptions) error {
	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	retry := supervisor.DefaultRetryPolicy
	retry.MaxRetries = opts.retries
	svOpts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithTimeout(opts.timeout),
		supervisor.WithRetryPolicy(retry),
		supervisor.WithStopGrace(opts.stopGrace),
	}
	if opts.historyDir != "" {
		store, err := history.Open(opts.historyDir)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		svOpts = append(svOpts, supervisor.WithRecorder(store))
	}

	sup := supervisor.New(supervisor.NewCLILauncher(strings.Fields(opts.crawler)...), svOpts...)
	defer func() { _ = sup.Close() }()

	sub := sup.Subscribe(event_stream.SubscribeOptions{})
	defer sub.Unsubscribe()

	out := cmd.OutOrStdout()
	runID, err := sup.Start(cfg)
	if err != nil {
		// Start already emitted its events; show them before failing.
		for _, e := range sup.Events(0) {
			fmt.Fprintln(out, formatEvent(e))
		}
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	interrupted := ctx.Done()

	// The event channel closes once the supervisor is closed, which happens
	// as soon as the run has ended and everything it emitted is stored.
	for {
		select {
		case <-interrupted:
			interrupted = nil
			if err := sup.Stop("interrupted"); err != nil {
				if !errors.Is(err, lib.ErrNotRunning) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
				_ = sup.Close()
			}
		case <-ticker.C:
			if snap := sup.Status(); snap.RunID == runID && snap.EndedAt != nil {
				_ = sup.Close()
			}
		case e, ok := <-sub.C:
			if !ok {
				snap := sup.Status()
				if snap.State == lib.RunStateFailed {
					return failedError(snap.Failure)
				}
				return nil
			}
			fmt.Fprintln(out, formatEvent(e))
		}
	}
}
