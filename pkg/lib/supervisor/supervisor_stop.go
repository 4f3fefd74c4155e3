package supervisor

import (
	"fmt"
	"syscall"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// Stop asks the running crawler to terminate. The run moves to Stopping and,
// once the crawler has exited, to Completed. Stop fails with ErrNotRunning
// unless a run is Running.
func (s *Supervisor) Stop(reason string) error {
	return s.StopRun("", reason)
}

// StopRun is Stop restricted to the run runID. It fails with ErrNotRunning
// when a different run is live, so a caller that checked ownership of runID
// can never stop a run started after that check.
func (s *Supervisor) StopRun(runID, reason string) error {
	reply := make(chan error, 1)
	if err := s.send(stopCommand{runID: runID, reason: reason, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.loopDone:
		select {
		case err := <-reply:
			return err
		default:
			return lib.ErrClosed
		}
	}
}

func stopMessage(reason string) string {
	if reason == "" {
		return "Crawl stopped by user."
	}
	return "Crawl stopped by user: " + reason
}

func (s *Supervisor) handleStop(runID, reason string) error {
	r := s.run
	if r == nil || r.finalized || r.state != lib.RunStateRunning {
		return lib.ErrNotRunning
	}
	if runID != "" && r.id != runID {
		return lib.ErrNotRunning
	}
	log := s.logger.With(zap.String("run_id", r.id))
	log.Info("stopping crawl", zap.String("reason", reason))

	r.stopRequested = true
	r.stopMessage = stopMessage(reason)
	s.transition(r, lib.RunStateStopping)
	s.emitStatus(r)

	p := r.proc
	if p == nil {
		// Waiting for a retry; there is nothing to signal.
		if r.retry != nil {
			r.retry.Stop()
			r.retry = nil
		}
		s.say(r, lib.SeverityInfo, r.stopMessage)
		s.transition(r, lib.RunStateCompleted)
		s.emitStatus(r)
		s.finish(r)
		return nil
	}
	s.publish()

	if err := p.sandbox.signal(syscall.SIGTERM); err != nil {
		log.Error("SIGTERM failed, escalating", zap.Error(err))
		s.emitError(r, lib.Failure{Kind: lib.FailureStop, Detail: err.Error()}, lib.SeverityError,
			"Failed to stop crawl process: "+err.Error())
		if err := p.sandbox.signal(syscall.SIGKILL); err != nil {
			return fmt.Errorf("%w: %v", lib.ErrStopFailed, err)
		}
		return nil
	}
	p.kill = s.after(s.opts.stopGrace, timerMsg{kind: timerKill, run: r, proc: p})
	return nil
}

// handleClose tears down a live run. The loop exits once the run is final.
func (s *Supervisor) handleClose() {
	s.closing = true
	r := s.run
	if r == nil || r.finalized {
		return
	}
	s.logger.Info("supervisor shutting down, terminating crawl", zap.String("run_id", r.id))

	r.stopRequested = true
	r.stopMessage = "Crawl stopped: supervisor shutting down"
	if r.state == lib.RunStateRunning {
		s.transition(r, lib.RunStateStopping)
		s.emitStatus(r)
	}

	if r.proc == nil {
		if r.retry != nil {
			r.retry.Stop()
			r.retry = nil
		}
		s.say(r, lib.SeverityInfo, r.stopMessage)
		s.transition(r, lib.RunStateCompleted)
		s.emitStatus(r)
		s.finish(r)
		return
	}
	s.publish()
	s.kill(r, r.proc)
}
