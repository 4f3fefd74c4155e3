package main

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func (s *CrawlServiceServer) Status(context.Context) (lib.RunSnapshot, error) {
	return s.sup.Status(), nil
}

// History lists finished runs, newest first. Zero asks for the configured default.
func (s *CrawlServiceServer) History(ctx context.Context, limit int) ([]lib.RunSnapshot, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	limit = min(limit, maxHistoryLimit)
	if s.history == nil {
		return nil, nil
	}
	runs, err := s.history.ListRuns(ctx, limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "error reading run history: %v", err)
	}
	return runs, nil
}
