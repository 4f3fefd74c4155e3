package main

import (
	"go.uber.org/zap"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/event_stream"
)

// Watch sends stored events after req.After and, when following, every new
// one until the client goes away or the daemon shuts down.
func (s *CrawlServiceServer) Watch(req crawlv1.WatchRequest, stream crawlv1.WatchServer) error {
	var filter func(lib.Event) bool
	if req.RunID != "" {
		filter = func(e lib.Event) bool { return e.RunID == req.RunID }
	}

	if !req.Follow {
		for _, e := range s.sup.Events(req.After) {
			if filter != nil && !filter(e) {
				continue
			}
			if err := stream.Send(e); err != nil {
				return err
			}
		}
		return nil
	}

	sub := s.sup.Subscribe(event_stream.SubscribeOptions{After: req.After, Filter: filter})
	defer sub.Unsubscribe()
	s.logger.Debug("watch started", zap.Stringer("subscription", sub.ID), zap.Uint64("after", req.After))

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := stream.Send(e); err != nil {
				return err
			}
		}
	}
}
