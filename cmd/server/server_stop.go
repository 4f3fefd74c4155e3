package main

import (
	"context"

	"go.uber.org/zap"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func (s *CrawlServiceServer) Stop(ctx context.Context, reason string) error {
	// With no live run the supervisor answers ErrNotRunning, which says more
	// than a permission error would.
	snap := s.sup.Status()
	if snap.RunID == "" || !snap.State.IsLive() {
		return crawlv1.ToStatus(lib.ErrNotRunning)
	}
	if err := s.checkOwnership(ctx, snap.RunID); err != nil {
		return err
	}

	// The supervisor re-checks the run id, so a run started after the
	// ownership check is left alone.
	if err := s.sup.StopRun(snap.RunID, reason); err != nil {
		return crawlv1.ToStatus(err)
	}
	s.logger.Info("crawl stop requested", zap.String("run_id", snap.RunID), zap.String("reason", reason))
	return nil
}
