package supervisor

import (
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/event_stream"
)

// Status returns the current or most recent run. Before the first Start the
// snapshot is Idle with an empty RunID.
func (s *Supervisor) Status() lib.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Subscribe delivers events from the stream, replaying stored ones first.
// Call Unsubscribe on the result when done.
func (s *Supervisor) Subscribe(opts event_stream.SubscribeOptions) *event_stream.Subscription {
	return s.events.Subscribe(opts)
}

// Events returns the stored events with a sequence number greater than after.
func (s *Supervisor) Events(after uint64) []lib.Event {
	return s.events.Since(after)
}

// LastSequence is the sequence number of the newest event.
func (s *Supervisor) LastSequence() uint64 {
	return s.events.LastSequence()
}

// publish copies the loop's view of the run for Status.
func (s *Supervisor) publish() {
	if s.run == nil {
		return
	}
	snap := s.run.snapshot()
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}
