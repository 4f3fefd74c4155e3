package lib

import (
	"strings"
	"testing"
	"time"
)

func TestCrawlProgress_Advance(t *testing.T) {
	p := CrawlProgress{}
	p = p.Advance(CrawlProgress{Finished: 3, Total: 10})
	if p != (CrawlProgress{Finished: 3, Total: 10}) {
		t.Fatalf("unexpected progress %+v", p)
	}
	// A stale line does not move progress backwards.
	p = p.Advance(CrawlProgress{Finished: 1, Total: 10})
	if p.Finished != 3 {
		t.Fatalf("progress went backwards: %+v", p)
	}
	// Finished is clamped to Total.
	p = p.Advance(CrawlProgress{Finished: 12, Total: 10})
	if p != (CrawlProgress{Finished: 10, Total: 10}) {
		t.Fatalf("expected clamp, got %+v", p)
	}
	p = CrawlProgress{}.Advance(CrawlProgress{Finished: -1, Total: -1})
	if p != (CrawlProgress{}) {
		t.Fatalf("negative counters must be ignored, got %+v", p)
	}
}

func TestRunState(t *testing.T) {
	for s := RunStateIdle; s <= RunStateFailed; s++ {
		parsed, err := ParseRunState(strings.ToLower(s.String()))
		if err != nil || parsed != s {
			t.Fatalf("round trip of %v failed: %v %v", s, parsed, err)
		}
	}
	if !RunStateCompleted.IsTerminal() || !RunStateFailed.IsTerminal() || RunStateRunning.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
	if RunStateIdle.IsLive() || !RunStateStopping.IsLive() {
		t.Fatalf("unexpected live classification")
	}
	if _, err := ParseRunState("Paused"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestFailure_Reason(t *testing.T) {
	f := Failure{Kind: FailureNonZeroExit, ExitCode: 2}
	if f.Reason() != "NonZeroExit(2)" {
		t.Fatalf("got %q", f.Reason())
	}
	f = Failure{Kind: FailureTimeout, Detail: "exceeded 10m0s"}
	if f.String() != "Timeout: exceeded 10m0s" {
		t.Fatalf("got %q", f.String())
	}
}

func TestRunDirName(t *testing.T) {
	t1 := time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.UTC)
	if got := RunDirName(t1); got != "crawl-2024-05-01T10-20-30-123Z" {
		t.Fatalf("got %q", got)
	}
	t2 := t1.Add(time.Millisecond)
	if RunDirName(t1) >= RunDirName(t2) {
		t.Fatalf("names must sort in start order")
	}
	if strings.ContainsAny(RunDirName(time.Now()), ":.") {
		t.Fatalf("name must not contain ':' or '.'")
	}
}

func TestEvent_Validate(t *testing.T) {
	good := []Event{
		NewLogEvent("r", StreamStdout, CrawlMessage{Content: "hi"}),
		NewStatusEvent("r", StatusEvent{State: RunStateRunning}),
		NewErrorEvent("r", Failure{Kind: FailureTimeout}, CrawlMessage{Severity: SeverityError}),
	}
	for _, e := range good {
		if err := e.Validate(); err != nil {
			t.Fatalf("%v: %v", e.Kind, err)
		}
	}

	bad := []Event{
		{Kind: EventKindLog, RunID: "r"},
		{Kind: EventKindStatus, RunID: "r", Log: &LogEvent{}},
		{Kind: EventKindLog, RunID: "r", Log: &LogEvent{}, Status: &StatusEvent{}},
		NewErrorEvent("r", Failure{}, CrawlMessage{}),
		NewLogEvent("", StreamStdout, CrawlMessage{}),
		{Kind: EventKind(9), RunID: "r", Log: &LogEvent{}},
	}
	for i, e := range bad {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}

	if msg, ok := good[2].Message(); !ok || msg.Severity != SeverityError {
		t.Fatalf("error events carry a message")
	}
	if _, ok := good[1].Message(); ok {
		t.Fatalf("status events carry no message")
	}
}
