package event_stream

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Broadcaster fans a value out to every subscriber. Both the inbox and each
// subscriber channel hold a single value and drop the oldest one when full,
// so Publish never blocks and slow subscribers only ever see the latest value.
type Broadcaster[T any] struct {
	messageReceiver chan T
	logger          *zap.Logger

	sendMu sync.Mutex
	closed bool

	mu          sync.Mutex
	subscribers map[chan T]struct{}
	stopped     bool
}

func RunNewBroadcaster[T any](logger *zap.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	broadcaster := &Broadcaster[T]{
		messageReceiver: make(chan T, 1),
		logger:          logger,
		subscribers:     make(map[chan T]struct{}),
	}

	go broadcaster.start()

	return broadcaster
}

func (broadcaster *Broadcaster[T]) start() {
	for msg := range broadcaster.messageReceiver {
		// Sends are non-blocking, so holding the lock here is short and keeps
		// Unsubscribe from racing with a send.
		broadcaster.mu.Lock()
		for s := range broadcaster.subscribers {
			select {
			case s <- msg:
			default:
				select {
				case <-s:
				default:
				}
				s <- msg
			}
		}
		broadcaster.mu.Unlock()
	}

	broadcaster.mu.Lock()
	for s := range broadcaster.subscribers {
		close(s)
	}
	broadcaster.subscribers = nil
	broadcaster.stopped = true
	broadcaster.mu.Unlock()
}

// Stop closes every subscriber channel once pending messages are delivered.
// Calling it more than once is a no-op.
func (broadcaster *Broadcaster[T]) Stop() {
	broadcaster.sendMu.Lock()
	defer broadcaster.sendMu.Unlock()
	if broadcaster.closed {
		return
	}
	broadcaster.closed = true
	close(broadcaster.messageReceiver)
}

func (broadcaster *Broadcaster[T]) Subscribe() (chan T, error) {
	ch := make(chan T, 1)
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if broadcaster.stopped {
		return nil, fmt.Errorf("failed to subscribe: broadcaster is stopped")
	}
	broadcaster.subscribers[ch] = struct{}{}
	broadcaster.logger.Debug("new subscriber", zap.Int("subscribers", len(broadcaster.subscribers)))
	return ch, nil
}

// Unsubscribe stops delivery to ch. The channel is not closed; the caller
// stops reading from it instead.
func (broadcaster *Broadcaster[T]) Unsubscribe(ch chan T) {
	broadcaster.mu.Lock()
	delete(broadcaster.subscribers, ch)
	broadcaster.mu.Unlock()
	broadcaster.logger.Debug("unsubscribed")
}

// Publish hands msg to the broadcaster goroutine. Publishing after Stop is a no-op.
func (broadcaster *Broadcaster[T]) Publish(msg T) {
	broadcaster.sendMu.Lock()
	defer broadcaster.sendMu.Unlock()
	if broadcaster.closed {
		return
	}
	select {
	case broadcaster.messageReceiver <- msg:
	default:
		// inbox is full, replace the stale value
		select {
		case <-broadcaster.messageReceiver:
		default:
		}
		broadcaster.messageReceiver <- msg
	}
}
