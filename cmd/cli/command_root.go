package main

import (
	"fmt"

	"github.com/spf13/cobra"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
)

func NewRootCmd() *cobra.Command {
	conn := &connOptions{}
	root := &cobra.Command{
		Use:           "crawlctl",
		Short:         "Crawl supervisor CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&conn.address, "address", "", "daemon address (default $CRAWLD_ADDRESS or "+defaultAddress+")")
	root.PersistentFlags().BoolVar(&conn.insecure, "insecure", false, "connect without TLS (default $CRAWLD_INSECURE)")

	root.AddCommand(newStartCmd(conn))
	root.AddCommand(newStatusCmd(conn))
	root.AddCommand(newStopCmd(conn))
	root.AddCommand(newWatchCmd(conn))
	root.AddCommand(newHistoryCmd(conn))
	root.AddCommand(newRunCmd())

	return root
}

// withClient dials the daemon for the duration of fn.
func withClient(conn *connOptions, fn func(*crawlv1.Client) error) error {
	cc, err := dial(conn)
	if err != nil {
		return err
	}
	defer func() { _ = cc.Close() }()
	if err := fn(crawlv1.NewClient(cc)); err != nil {
		return fmt.Errorf("%s: %w", conn.resolvedAddress(), err)
	}
	return nil
}
