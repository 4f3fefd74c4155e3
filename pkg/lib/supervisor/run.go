package supervisor

import (
	"fmt"
	"os/exec"
	"slices"
	"time"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

var transitions = map[lib.RunState][]lib.RunState{
	lib.RunStateIdle:     {lib.RunStateStarting},
	lib.RunStateStarting: {lib.RunStateRunning, lib.RunStateIdle},
	lib.RunStateRunning:  {lib.RunStateStopping, lib.RunStateCompleted, lib.RunStateFailed},
	lib.RunStateStopping: {lib.RunStateCompleted, lib.RunStateFailed},
}

// run is one Start and everything that follows it, retries included.
type run struct {
	id         string
	cfg        lib.CrawlConfig
	dir        string
	outputPath string

	state      lib.RunState
	attempt    int
	proc       *process
	progress   lib.CrawlProgress
	status     string
	failure    *lib.Failure
	statistics *lib.CrawlStatistics
	startedAt  time.Time
	endedAt    *time.Time

	// terminalSeen is set once the crawler printed a terminal line; from then
	// on output is still logged but no longer evaluated.
	terminalSeen  bool
	stopRequested bool
	stopMessage   string
	retry         *time.Timer
	// finalized is set when the run can no longer change. A new Start is only
	// accepted after that.
	finalized bool
}

func newRun(cfg lib.CrawlConfig) *run {
	return &run{
		id:        lib.NewID(),
		cfg:       cfg,
		state:     lib.RunStateIdle,
		startedAt: time.Now(),
	}
}

func (r *run) transition(to lib.RunState) error {
	if !slices.Contains(transitions[r.state], to) {
		return fmt.Errorf("invalid transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}

func (r *run) snapshot() lib.RunSnapshot {
	cfg := r.cfg
	snap := lib.RunSnapshot{
		RunID:     r.id,
		State:     r.state,
		Config:    &cfg,
		RunDir:    r.dir,
		Attempt:   r.attempt,
		Progress:  r.progress,
		Status:    r.status,
		StartedAt: r.startedAt,
	}
	if r.proc != nil && r.proc.cmd.Process != nil {
		snap.PID = r.proc.cmd.Process.Pid
	}
	if r.failure != nil {
		f := *r.failure
		snap.Failure = &f
	}
	if r.statistics != nil {
		st := *r.statistics
		snap.Statistics = &st
	}
	if r.endedAt != nil {
		t := *r.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// process is one attempt's crawler.
type process struct {
	attempt int
	cmd     *exec.Cmd
	sandbox *sandbox
	stdout  *pump
	stderr  *pump

	timeout  *time.Timer
	kill     *time.Timer
	timedOut bool
}

func (p *process) stopTimers() {
	if p.timeout != nil {
		p.timeout.Stop()
	}
	if p.kill != nil {
		p.kill.Stop()
	}
}
