package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func TestFormatEvent(t *testing.T) {
	progress := lib.CrawlProgress{Finished: 2, Total: 5}
	cases := []struct {
		event lib.Event
		want  string
	}{
		{lib.NewLogEvent("r", lib.StreamStdout, lib.CrawlMessage{Severity: lib.SeverityWarning, Content: "WARN slow"}), "[warning] WARN slow"},
		{lib.NewStatusEvent("r", lib.StatusEvent{State: lib.RunStateRunning, Status: "Crawling: 2/5", Progress: &progress}), "[status] Running: Crawling: 2/5 (2/5)"},
		{lib.NewStatusEvent("r", lib.StatusEvent{State: lib.RunStateFailed, Failure: &lib.Failure{Kind: lib.FailureNonZeroExit, ExitCode: 3}}), "[status] Failed - NonZeroExit(3)"},
		{lib.NewErrorEvent("r", lib.Failure{Kind: lib.FailureTimeout}, lib.CrawlMessage{Severity: lib.SeverityError, Content: "Crawl timed out"}), "[error] Crawl timed out (Timeout)"},
	}
	for _, c := range cases {
		got := formatEvent(c.event)
		if !strings.HasSuffix(got, c.want) {
			t.Errorf("expected %q to end with %q", got, c.want)
		}
	}
}

func TestPrintStatusTable(t *testing.T) {
	var buf bytes.Buffer
	printStatusTable(&buf, lib.RunSnapshot{})
	if !strings.Contains(buf.String(), "No crawl") {
		t.Fatalf("unexpected output for an idle supervisor: %q", buf.String())
	}

	buf.Reset()
	printStatusTable(&buf, lib.RunSnapshot{
		RunID:     "run-1",
		State:     lib.RunStateFailed,
		Failure:   &lib.Failure{Kind: lib.FailureTimeout, Detail: "after 10m0s"},
		StartedAt: time.Now(),
	})
	out := buf.String()
	for _, want := range []string{"run-1", "Failed", "Timeout: after 10m0s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in\n%s", want, out)
		}
	}
}

func TestPrintHistoryTable(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	var buf bytes.Buffer
	printHistoryTable(&buf, []lib.RunSnapshot{
		{RunID: "b", State: lib.RunStateFailed, Failure: &lib.Failure{Kind: lib.FailureNonZeroExit, ExitCode: 1}, StartedAt: start, EndedAt: &end},
		{RunID: "a", State: lib.RunStateCompleted, StartedAt: start, EndedAt: &end, Progress: lib.CrawlProgress{Finished: 5, Total: 5}},
	})
	out := buf.String()
	for _, want := range []string{"Failed (NonZeroExit(1))", "1m30s", "5/5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in\n%s", want, out)
		}
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 table lines, got %d:\n%s", len(lines), out)
	}
}
