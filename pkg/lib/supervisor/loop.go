package supervisor

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

type exitMsg struct {
	proc *process
	err  error
}

type timerKind int

const (
	timerTimeout timerKind = iota
	timerKill
	timerRetry
)

type timerMsg struct {
	kind timerKind
	run  *run
	proc *process
}

func (s *Supervisor) loop() {
	defer close(s.loopDone)
	s.logger.Debug("supervisor loop started")

	for {
		select {
		case cmd := <-s.commands:
			s.handleCommand(cmd)
		case m := <-s.lines:
			s.handleLine(m)
		case m := <-s.exits:
			s.handleExit(m)
		case m := <-s.timers:
			s.handleTimer(m)
		}

		if s.closing && (s.run == nil || s.run.finalized) {
			s.logger.Debug("supervisor loop stopped")
			return
		}
	}
}

func (s *Supervisor) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case startCommand:
		id, err := s.handleStart(c.cfg)
		c.reply <- startReply{runID: id, err: err}
	case stopCommand:
		c.reply <- s.handleStop(c.runID, c.reason)
	case closeCommand:
		s.handleClose()
	default:
		s.logger.Error("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

// after delivers m to the loop once d has passed. Stale deliveries are
// recognised by the run and process they carry.
func (s *Supervisor) after(d time.Duration, m timerMsg) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case s.timers <- m:
		case <-s.loopDone:
		}
	})
}

func (s *Supervisor) handleLine(m lineMsg) {
	r := s.run
	if r == nil || r.proc != m.proc {
		return
	}
	a := m.analysis
	s.emit(lib.NewLogEvent(r.id, m.stream, lib.CrawlMessage{Severity: a.Severity, Content: a.Text}))
	s.metrics.message(a.Severity.String())

	if r.terminalSeen || r.state != lib.RunStateRunning {
		return
	}
	defer s.publish()

	if a.Status.Statistics != nil {
		r.statistics = a.Status.Statistics
	}
	if !a.IsStatusLine() {
		return
	}
	if a.Status.Progress != nil {
		r.progress = r.progress.Advance(*a.Status.Progress)
	}

	if a.Status.Terminal {
		r.terminalSeen = true
		r.status = a.Text
		to := lib.RunStateCompleted
		if a.Severity == lib.SeverityError {
			f := lib.Failure{Kind: lib.FailureCrawlerReported, Detail: a.Text}
			r.failure = &f
			to = lib.RunStateFailed
		}
		s.transition(r, to)
		s.emitStatus(r)
		m.proc.kill = s.after(s.opts.completionGrace, timerMsg{kind: timerKill, run: r, proc: m.proc})
		return
	}

	// Only new status text is a status change.
	if a.Text == r.status {
		return
	}
	r.status = a.Text
	s.emitStatus(r)
}

func (s *Supervisor) handleExit(m exitMsg) {
	p := m.proc
	p.stopTimers()
	if err := p.sandbox.teardown(); err != nil {
		s.logger.Warn("failed to kill leftover crawler processes",
			zap.String("sandbox", p.sandbox.id), zap.Error(err))
	}

	r := s.run
	if r == nil || r.proc != p {
		return
	}
	r.proc = nil

	code, desc := exitStatus(p.cmd, m.err)
	s.logger.Info("crawler exited",
		zap.String("run_id", r.id),
		zap.Int("attempt", p.attempt),
		zap.String("status", desc))

	switch {
	case r.terminalSeen:
		if code == 0 {
			s.say(r, lib.SeveritySuccess, "Crawl completed successfully with exit code 0")
		}
		s.finish(r)
	case r.stopRequested:
		s.say(r, lib.SeverityInfo, r.stopMessage)
		s.transition(r, lib.RunStateCompleted)
		s.emitStatus(r)
		s.finish(r)
	case p.timedOut:
		s.fail(r,
			lib.Failure{Kind: lib.FailureTimeout, Detail: fmt.Sprintf("no exit within %s", s.opts.timeout)},
			fmt.Sprintf("Crawl timed out after %s and was terminated", s.opts.timeout))
	case code == 0:
		s.say(r, lib.SeveritySuccess, "Crawl completed successfully with exit code 0")
		s.transition(r, lib.RunStateCompleted)
		s.emitStatus(r)
		s.finish(r)
	default:
		text := "Crawl exited with " + desc
		if !s.opts.retry.ShouldRetry(r.attempt) {
			s.fail(r, lib.Failure{Kind: lib.FailureNonZeroExit, ExitCode: code, Detail: desc}, text)
			return
		}
		delay := s.opts.retry.Delay(r.attempt)
		s.say(r, lib.SeverityError, text)
		s.say(r, lib.SeverityWarning, fmt.Sprintf("Retrying crawl in %s (attempt %d of %d)",
			delay, r.attempt+1, s.opts.retry.MaxAttempts()))
		r.retry = s.after(delay, timerMsg{kind: timerRetry, run: r})
		s.publish()
	}
}

func (s *Supervisor) handleTimer(m timerMsg) {
	r := s.run
	if r == nil || r != m.run {
		return
	}

	switch m.kind {
	case timerTimeout:
		p := m.proc
		if r.proc != p || r.state != lib.RunStateRunning {
			return
		}
		p.timedOut = true
		s.say(r, lib.SeverityWarning, "Crawl process taking too long. Terminating...")
		s.kill(r, p)
	case timerKill:
		if r.proc != m.proc {
			return
		}
		s.logger.Info("grace period over, killing crawler", zap.String("run_id", r.id))
		s.kill(r, m.proc)
	case timerRetry:
		if r.retry == nil || r.proc != nil || r.state != lib.RunStateRunning {
			return
		}
		r.retry = nil
		r.attempt++
		if err := s.launch(r); err != nil {
			s.fail(r, lib.Failure{Kind: lib.FailureSpawn, Detail: err.Error()},
				"Failed to start crawl process: "+err.Error())
			return
		}
		s.publish()
	}
}

func (s *Supervisor) kill(r *run, p *process) {
	if err := p.sandbox.signal(syscall.SIGKILL); err != nil {
		s.logger.Error("failed to kill crawler", zap.String("run_id", r.id), zap.Error(err))
		s.emitError(r, lib.Failure{Kind: lib.FailureStop, Detail: err.Error()}, lib.SeverityError,
			"Failed to kill crawl process: "+err.Error())
	}
}

// fail ends the run with f, reported as an error message.
func (s *Supervisor) fail(r *run, f lib.Failure, text string) {
	s.emitError(r, f, lib.SeverityError, text)
	r.failure = &f
	s.transition(r, lib.RunStateFailed)
	s.emitStatus(r)
	s.finish(r)
}

// finish runs once the crawler is gone and the run reached its final state.
func (s *Supervisor) finish(r *run) {
	if r.state == lib.RunStateCompleted && r.dir != "" {
		s.postProcess(r)
	}
	now := time.Now()
	r.endedAt = &now
	r.finalized = true
	s.metrics.runFinished(strings.ToLower(r.state.String()), now.Sub(r.startedAt))
	s.publish()
	s.logger.Info("crawl run finished",
		zap.String("run_id", r.id),
		zap.Stringer("state", r.state),
		zap.Int("attempts", r.attempt))
	s.record(r.snapshot())
}

func (s *Supervisor) postProcess(r *run) {
	renames, err := renumberOutputs(r.dir, r.cfg.OutputFileName)
	for _, rn := range renames {
		s.say(r, lib.SeverityInfo, fmt.Sprintf("Renamed %s to %s", rn.From, rn.To))
	}
	if err != nil {
		s.emitError(r, lib.Failure{Kind: lib.FailurePostProcessWarning, Detail: err.Error()}, lib.SeverityWarning,
			"Error processing output files: "+err.Error())
	}
}

func (s *Supervisor) transition(r *run, to lib.RunState) {
	from := r.state
	if err := r.transition(to); err != nil {
		s.logger.Error("state transition rejected", zap.String("run_id", r.id), zap.Error(err))
		return
	}
	s.logger.Debug("state changed",
		zap.String("run_id", r.id),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

func (s *Supervisor) emit(e lib.Event) {
	if _, ok := s.events.Append(e); !ok {
		s.logger.Warn("event dropped, stream closed", zap.Stringer("kind", e.Kind))
	}
}

// say emits a message written by the supervisor itself.
func (s *Supervisor) say(r *run, severity lib.Severity, text string) {
	s.emit(lib.NewLogEvent(r.id, lib.StreamSupervisor, lib.CrawlMessage{Severity: severity, Content: text}))
	s.metrics.message(severity.String())
}

func (s *Supervisor) emitError(r *run, f lib.Failure, severity lib.Severity, text string) {
	s.emit(lib.NewErrorEvent(r.id, f, lib.CrawlMessage{Severity: severity, Content: text}))
	s.metrics.message(severity.String())
}

func (s *Supervisor) emitStatus(r *run) {
	ev := lib.StatusEvent{State: r.state, Status: r.status}
	if r.progress != (lib.CrawlProgress{}) {
		p := r.progress
		ev.Progress = &p
	}
	if r.failure != nil {
		f := *r.failure
		ev.Failure = &f
	}
	s.emit(lib.NewStatusEvent(r.id, ev))
}

// exitStatus describes how the crawler ended. A crawler killed by a signal reports code -1.
func exitStatus(cmd *exec.Cmd, err error) (int, string) {
	st := cmd.ProcessState
	if st == nil {
		return -1, fmt.Sprintf("code -1 (%v)", err)
	}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, fmt.Sprintf("code -1 and signal %s", ws.Signal())
	}
	return st.ExitCode(), fmt.Sprintf("code %d", st.ExitCode())
}
