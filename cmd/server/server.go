package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/supervisor"
)

type runLister interface {
	ListRuns(ctx context.Context, limit int) ([]lib.RunSnapshot, error)
}

// CrawlServiceServer exposes one supervisor over gRPC.
type CrawlServiceServer struct {
	sup          *supervisor.Supervisor
	history      runLister
	historyLimit int
	logger       *zap.Logger

	mu     sync.RWMutex
	owners map[string]string // run id -> SPIFFE ID of the client that started it
}

var _ crawlv1.CrawlServiceServer = (*CrawlServiceServer)(nil)

func NewCrawlServiceServer(sup *supervisor.Supervisor, history runLister, historyLimit int, logger *zap.Logger) *CrawlServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlServiceServer{
		sup:          sup,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger,
		owners:       make(map[string]string),
	}
}
