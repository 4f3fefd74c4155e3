package main

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func (s *CrawlServiceServer) Start(ctx context.Context, cfg lib.CrawlConfig) (string, error) {
	spiffeId := extractSpiffeIdFromContext(ctx)
	if spiffeId == nil {
		return "", status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}

	s.logger.Info("starting crawl", zap.String("client", *spiffeId), zap.String("url", cfg.StartURL))
	runID, err := s.sup.Start(cfg)
	if err != nil {
		s.logger.Info("crawl rejected", zap.String("client", *spiffeId), zap.Error(err))
		return "", crawlv1.ToStatus(err)
	}

	// A successful Start means every earlier run has ended, so only the new
	// run can still be stopped.
	s.mu.Lock()
	s.owners = map[string]string{runID: *spiffeId}
	s.mu.Unlock()

	return runID, nil
}
