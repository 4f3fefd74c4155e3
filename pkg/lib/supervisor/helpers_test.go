package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// shLauncher runs script with the output path as $1 and counts launches.
func shLauncher(script string, launches *atomic.Int32) Launcher {
	return LauncherFunc(func(cfg lib.CrawlConfig, outputPath string) (*exec.Cmd, error) {
		if launches != nil {
			launches.Add(1)
		}
		return exec.Command("sh", "-c", script, "crawler", outputPath), nil
	})
}

func testConfig(t *testing.T) lib.CrawlConfig {
	t.Helper()
	return lib.CrawlConfig{
		StartURL:        "https://example.com/docs",
		CSSSelector:     "main",
		MaxPages:        10,
		OutputDirectory: filepath.Join(t.TempDir(), "crawls"),
		OutputFileName:  "output.json",
	}
}

func newTestSupervisor(t *testing.T, launcher Launcher, opts ...Option) *Supervisor {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithRetryPolicy(RetryPolicy{}),
		WithStopGrace(time.Second),
	}
	s := New(launcher, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitFinal polls until the current run has ended.
func waitFinal(t *testing.T, s *Supervisor) lib.RunSnapshot {
	t.Helper()
	return waitFor(t, s, "run to finish", func(snap lib.RunSnapshot) bool { return snap.EndedAt != nil })
}

func waitFor(t *testing.T, s *Supervisor, what string, cond func(lib.RunSnapshot) bool) lib.RunSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Status(); cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, last status: %+v", what, s.Status())
	return lib.RunSnapshot{}
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && len(bytes.TrimSpace(data)) > 0 {
			return data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s did not appear", path)
	return nil
}

// waitForMessage polls the event log for a message of severity starting with prefix.
func waitForMessage(t *testing.T, s *Supervisor, severity lib.Severity, prefix string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range messages(s.Events(0)) {
			if msg.Severity == severity && strings.HasPrefix(msg.Content, prefix) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %v message starting with %q: %+v", severity, prefix, messages(s.Events(0)))
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	pid, err := strconv.Atoi(strings.TrimSpace(string(waitForFile(t, path))))
	if err != nil {
		t.Fatalf("bad pid file %s: %v", path, err)
	}
	return pid
}

// processGone reports whether pid no longer runs. Unreaped zombies count as gone.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(data, ')')
	return i >= 0 && i+2 < len(data) && data[i+2] == 'Z'
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if processGone(pid) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %d is still alive", pid)
}

func messages(events []lib.Event) []lib.CrawlMessage {
	var out []lib.CrawlMessage
	for _, e := range events {
		if msg, ok := e.Message(); ok {
			out = append(out, msg)
		}
	}
	return out
}

func hasMessage(events []lib.Event, severity lib.Severity, content string) bool {
	for _, msg := range messages(events) {
		if msg.Severity == severity && msg.Content == content {
			return true
		}
	}
	return false
}

func statusEvents(events []lib.Event) []lib.StatusEvent {
	var out []lib.StatusEvent
	for _, e := range events {
		if e.Kind == lib.EventKindStatus {
			out = append(out, *e.Status)
		}
	}
	return out
}

func errorEvents(events []lib.Event, kind lib.FailureKind) []lib.ErrorEvent {
	var out []lib.ErrorEvent
	for _, e := range events {
		if e.Kind == lib.EventKindError && e.Error.Failure.Kind == kind {
			out = append(out, *e.Error)
		}
	}
	return out
}

// assertMonotonic checks every state change in events follows the state machine.
func assertMonotonic(t *testing.T, events []lib.Event) []lib.RunState {
	t.Helper()
	var states []lib.RunState
	for _, st := range statusEvents(events) {
		if n := len(states); n > 0 && states[n-1] != st.State {
			r := &run{state: states[n-1]}
			if err := r.transition(st.State); err != nil {
				t.Fatalf("state sequence %v then %v: %v", states, st.State, err)
			}
		}
		if n := len(states); n == 0 || states[n-1] != st.State {
			states = append(states, st.State)
		}
	}
	return states
}
