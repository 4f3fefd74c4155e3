package supervisor

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// Start launches a crawl for cfg and returns its run ID once the crawler is
// running. The outcome arrives later on the event stream.
//
// Start fails with ErrAlreadyRunning while a previous run still owns a
// process, with ErrInvalidConfig before anything is touched, and with
// ErrDirectoryCreateFailed or ErrSpawnFailed when the run is aborted; the
// supervisor is then Idle again.
func (s *Supervisor) Start(cfg lib.CrawlConfig) (string, error) {
	reply := make(chan startReply, 1)
	if err := s.send(startCommand{cfg: cfg, reply: reply}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.runID, r.err
	case <-s.loopDone:
		select {
		case r := <-reply:
			return r.runID, r.err
		default:
			return "", lib.ErrClosed
		}
	}
}

func (s *Supervisor) handleStart(cfg lib.CrawlConfig) (string, error) {
	if s.closing {
		return "", lib.ErrClosed
	}
	if r := s.run; r != nil && !r.finalized {
		return "", fmt.Errorf("%w: run %s is %s", lib.ErrAlreadyRunning, r.id, r.state)
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r := newRun(cfg)
	s.run = r
	s.transition(r, lib.RunStateStarting)
	s.emitStatus(r)
	s.publish()
	log := s.logger.With(zap.String("run_id", r.id))
	log.Info("starting crawl", zap.String("url", cfg.StartURL), zap.Int("max_pages", cfg.MaxPages))

	dir, err := createRunDir(cfg.OutputDirectory, r.startedAt)
	if err != nil {
		log.Error("failed to create crawl directory", zap.Error(err))
		s.abort(r, lib.Failure{Kind: lib.FailureDirectoryCreate, Detail: err.Error()},
			"Error creating crawl directory: "+err.Error())
		return "", fmt.Errorf("%w: %v", lib.ErrDirectoryCreateFailed, err)
	}
	r.dir = dir
	r.outputPath = filepath.Join(dir, cfg.OutputFileName)
	s.say(r, lib.SeverityInfo, "Created crawl directory at: "+dir)

	r.attempt = 1
	if err := s.launch(r); err != nil {
		log.Error("failed to start crawler", zap.Error(err))
		s.abort(r, lib.Failure{Kind: lib.FailureSpawn, Detail: err.Error()},
			"Failed to start crawl process: "+err.Error())
		return "", fmt.Errorf("%w: %v", lib.ErrSpawnFailed, err)
	}

	s.transition(r, lib.RunStateRunning)
	s.emitStatus(r)
	s.metrics.runStarted()
	s.publish()
	return r.id, nil
}

// launch spawns the crawler for r's current attempt.
func (s *Supervisor) launch(r *run) error {
	cmd, err := s.launcher.Command(r.cfg, r.outputPath)
	if err != nil {
		return err
	}
	if cmd.Dir == "" {
		cmd.Dir = r.dir
	}

	sb, err := newSandbox(fmt.Sprintf("%s-%d", r.id, r.attempt), s.opts.memoryHigh)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = sb.attr

	p := &process{attempt: r.attempt, cmd: cmd, sandbox: sb}
	p.stdout = newPump(s, p, lib.StreamStdout)
	p.stderr = newPump(s, p, lib.StreamStderr)
	// cmd.Stdin is left nil, so the crawler reads /dev/null.
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	// Grandchildren holding the pipes open must not keep Wait from returning.
	cmd.WaitDelay = s.opts.waitDelay

	s.say(r, lib.SeverityInfo, "Executing: "+cmd.String())
	if err := cmd.Start(); err != nil {
		sb.release()
		return err
	}
	sb.started(cmd.Process.Pid)
	r.proc = p
	if s.opts.timeout > 0 {
		p.timeout = s.after(s.opts.timeout, timerMsg{kind: timerTimeout, run: r, proc: p})
	}
	s.metrics.attemptStarted()

	s.logger.Info("crawler started",
		zap.String("run_id", r.id),
		zap.Int("attempt", r.attempt),
		zap.Int("pid", cmd.Process.Pid))

	go s.watch(p)
	return nil
}

func (s *Supervisor) watch(p *process) {
	err := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()

	select {
	case s.exits <- exitMsg{proc: p, err: err}:
	case <-s.loopDone:
		_ = p.sandbox.teardown()
	}
}

// abort returns a run that never got a crawler running to Idle.
func (s *Supervisor) abort(r *run, f lib.Failure, text string) {
	s.emitError(r, f, lib.SeverityError, text)
	r.failure = &f
	s.transition(r, lib.RunStateIdle)
	s.emitStatus(r)

	now := time.Now()
	r.endedAt = &now
	r.finalized = true
	s.metrics.runFinished("aborted", now.Sub(r.startedAt))
	s.publish()
	s.record(r.snapshot())
}
