// Package supervisor owns the external crawler process: it launches it for a
// validated config, turns its output into events, enforces a timeout, retries
// abnormal exits a bounded number of times and cleans up after it.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/event_stream"
)

const (
	DefaultTimeout         = 10 * time.Minute
	DefaultStopGrace       = 5 * time.Second
	DefaultCompletionGrace = 10 * time.Second

	defaultWaitDelay  = 2 * time.Second
	defaultMemoryHigh = int64(2) << 30
)

// Recorder persists a summary of every finished run.
type Recorder interface {
	RecordRun(ctx context.Context, snap lib.RunSnapshot) error
}

type options struct {
	timeout         time.Duration
	retry           RetryPolicy
	stopGrace       time.Duration
	completionGrace time.Duration
	waitDelay       time.Duration
	memoryHigh      int64
	logger          *zap.Logger
	metrics         *Metrics
	recorder        Recorder
}

type Option func(*options)

// WithTimeout bounds each attempt, measured from spawn. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithStopGrace is how long Stop waits after SIGTERM before sending SIGKILL.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) { o.stopGrace = d }
}

// WithCompletionGrace is how long the crawler may keep running after it
// printed a terminal line before it is killed.
func WithCompletionGrace(d time.Duration) Option {
	return func(o *options) { o.completionGrace = d }
}

// WithMemoryHigh sets the cgroup memory.high of each attempt when running as root. Zero disables it.
func WithMemoryHigh(bytes int64) Option {
	return func(o *options) { o.memoryHigh = bytes }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Supervisor runs at most one crawl at a time.
//
// All run state is owned by a single loop goroutine. Output readers, the
// exit watcher and timers hand their results to it as messages, and public
// methods talk to it through commands.
type Supervisor struct {
	launcher Launcher
	opts     options
	logger   *zap.Logger
	metrics  *Metrics
	events   *event_stream.EventStream

	commands chan any
	lines    chan lineMsg
	exits    chan exitMsg
	timers   chan timerMsg
	loopDone chan struct{}

	closeOnce sync.Once

	mu       sync.RWMutex
	snapshot lib.RunSnapshot

	// Owned by the loop goroutine.
	run     *run
	closing bool
}

// New starts a supervisor that launches crawls with launcher.
func New(launcher Launcher, opts ...Option) *Supervisor {
	o := options{
		timeout:         DefaultTimeout,
		retry:           DefaultRetryPolicy,
		stopGrace:       DefaultStopGrace,
		completionGrace: DefaultCompletionGrace,
		waitDelay:       defaultWaitDelay,
		memoryHigh:      defaultMemoryHigh,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Supervisor{
		launcher: launcher,
		opts:     o,
		logger:   o.logger,
		metrics:  o.metrics,
		events:   event_stream.RunNewEventStream(o.logger.Named("events")),
		commands: make(chan any),
		lines:    make(chan lineMsg),
		exits:    make(chan exitMsg),
		timers:   make(chan timerMsg),
		loopDone: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Close kills a live crawler, waits for it to exit and closes the event
// stream. The interrupted run ends Completed, like a user stop.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		select {
		case s.commands <- closeCommand{}:
		case <-s.loopDone:
		}
		<-s.loopDone
		s.events.Close()
		s.logger.Info("supervisor closed")
	})
	return nil
}

type startCommand struct {
	cfg   lib.CrawlConfig
	reply chan startReply
}

type startReply struct {
	runID string
	err   error
}

type stopCommand struct {
	runID  string // empty means whichever run is live
	reason string
	reply  chan error
}

type closeCommand struct{}

func (s *Supervisor) send(cmd any) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-s.loopDone:
		return lib.ErrClosed
	}
}

func (s *Supervisor) record(snap lib.RunSnapshot) {
	if s.opts.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.recorder.RecordRun(ctx, snap); err != nil {
		s.logger.Warn("failed to record run", zap.String("run_id", snap.RunID), zap.Error(err))
	}
}
