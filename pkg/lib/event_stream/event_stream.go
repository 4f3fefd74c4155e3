// Package event_stream holds the ordered record of everything that happened
// during crawl runs and delivers it to any number of subscribers.
package event_stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// DefaultCapacity is the subscription channel buffer used when none is given.
const DefaultCapacity = 64

// node is an element of the append-only list. head is a sentinel.
type node struct {
	event lib.Event
	next  atomic.Pointer[node]
}

// EventStream is an append-only, sequence-numbered list of events.
// Appends are serialized; readers walk the list without locks, so a slow
// subscriber never holds up the producer.
type EventStream struct {
	head *node

	mu     sync.Mutex
	tail   *node
	closed bool

	lastSeq atomic.Uint64

	broadcaster *Broadcaster[struct{}]
	logger      *zap.Logger
}

// RunNewEventStream creates an empty stream. A nil logger discards output.
func RunNewEventStream(logger *zap.Logger) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	sentinel := &node{}
	return &EventStream{
		head:        sentinel,
		tail:        sentinel,
		broadcaster: RunNewBroadcaster[struct{}](logger),
		logger:      logger,
	}
}

// Append assigns the next sequence number to e, stores it and wakes subscribers.
// It returns the stored event, or false if the stream is closed.
func (s *EventStream) Append(e lib.Event) (lib.Event, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return e, false
	}
	e.Sequence = s.lastSeq.Load() + 1
	n := &node{event: e}
	s.tail.next.Store(n)
	s.tail = n
	s.lastSeq.Store(e.Sequence)
	s.broadcaster.Publish(struct{}{})
	s.mu.Unlock()

	s.logger.Debug("event appended",
		zap.Uint64("seq", e.Sequence),
		zap.Stringer("kind", e.Kind),
		zap.String("run_id", e.RunID))
	return e, true
}

// LastSequence is the sequence number of the newest event, 0 when empty.
func (s *EventStream) LastSequence() uint64 {
	return s.lastSeq.Load()
}

// Close stops accepting events. Subscribers receive whatever is left and then see their channel closed.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.broadcaster.Stop()
}

// ForEach walks stored events in order until iter returns false.
func (s *EventStream) ForEach(iter func(lib.Event) bool) {
	if s == nil || iter == nil {
		return
	}
	for cur := s.head.next.Load(); cur != nil; cur = cur.next.Load() {
		if !iter(cur.event) {
			return
		}
	}
}

// Since returns every stored event with a sequence greater than after.
func (s *EventStream) Since(after uint64) []lib.Event {
	var out []lib.Event
	s.ForEach(func(e lib.Event) bool {
		if e.Sequence > after {
			out = append(out, e)
		}
		return true
	})
	return out
}

// SubscribeOptions narrows what a subscription receives.
type SubscribeOptions struct {
	// After skips events with a sequence number less than or equal to it. Zero replays everything.
	After uint64
	// Filter, when set, drops events it returns false for.
	Filter func(lib.Event) bool
	// Capacity is the channel buffer; DefaultCapacity when zero.
	Capacity int
}

// Subscription is the token returned by Subscribe. Each event is delivered on C at most once.
type Subscription struct {
	ID uuid.UUID
	C  <-chan lib.Event

	stop     chan struct{}
	once     sync.Once
	notifier chan struct{}
	stream   *EventStream
}

// Unsubscribe stops delivery and closes C. It is safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.stop)
		if sub.notifier != nil {
			sub.stream.broadcaster.Unsubscribe(sub.notifier)
		}
	})
}

// Subscribe starts delivering events in sequence order.
// On a closed stream the stored events are replayed and C is then closed.
func (s *EventStream) Subscribe(opts SubscribeOptions) *Subscription {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ch := make(chan lib.Event, capacity)
	sub := &Subscription{
		ID:     uuid.New(),
		C:      ch,
		stop:   make(chan struct{}),
		stream: s,
	}

	notifier, err := s.broadcaster.Subscribe()
	if err == nil {
		sub.notifier = notifier
	}
	s.logger.Debug("subscribed",
		zap.Stringer("subscriber", sub.ID),
		zap.Uint64("after", opts.After),
		zap.Bool("live", err == nil))

	go s.deliver(sub, ch, opts)
	return sub
}

func (s *EventStream) deliver(sub *Subscription, ch chan<- lib.Event, opts SubscribeOptions) {
	defer close(ch)

	notifier := sub.notifier
	prev := s.head
	for {
		current := prev.next.Load()
		if current == nil {
			if notifier == nil {
				return
			}
			select {
			case _, ok := <-notifier:
				if !ok {
					// The stream is closed; everything it will ever hold is already linked.
					notifier = nil
				}
			case <-sub.stop:
				return
			}
			continue
		}
		prev = current

		e := current.event
		if e.Sequence <= opts.After || (opts.Filter != nil && !opts.Filter(e)) {
			continue
		}
		select {
		case <-sub.stop:
			return
		default:
		}
		select {
		case ch <- e:
		case <-sub.stop:
			return
		}
	}
}
