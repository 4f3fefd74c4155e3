package crawlv1

import (
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func sampleConfig() lib.CrawlConfig {
	return lib.CrawlConfig{
		StartURL:        "https://example.com/docs",
		MatchPattern:    "https://example.com/docs/**",
		CSSSelector:     ".content",
		MaxPages:        25,
		OutputDirectory: "/tmp/out",
		OutputFileName:  "docs.json",
	}
}

func TestConfigStruct(t *testing.T) {
	cfg := sampleConfig()
	s, err := ConfigToStruct(cfg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ConfigFromStruct(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, got)
	}
}

func TestConfigFromStruct_Rejects(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		want string
	}{
		{"missing url", map[string]any{"css_selector": "a", "max_pages": 1, "output_directory": "d", "output_file_name": "f.json"}, "config.start_url: required"},
		{"wrong type", map[string]any{"start_url": "u", "css_selector": "a", "max_pages": "ten", "output_directory": "d", "output_file_name": "f.json"}, "config.max_pages: must be a number"},
		{"fraction", map[string]any{"start_url": "u", "css_selector": "a", "max_pages": 1.5, "output_directory": "d", "output_file_name": "f.json"}, "must be an integer"},
		{"unknown field", map[string]any{"start_url": "u", "css_selector": "a", "max_pages": 1, "output_directory": "d", "output_file_name": "f.json", "depth": 3}, "unknown fields depth"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := structpb.NewStruct(c.in)
			if err != nil {
				t.Fatal(err)
			}
			_, err = ConfigFromStruct(s)
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error containing %q, got %v", c.want, err)
			}
		})
	}
}

func TestSnapshotStruct(t *testing.T) {
	cfg := sampleConfig()
	avg := 12.5
	ended := time.Date(2024, 5, 1, 10, 21, 0, 0, time.UTC)
	snap := lib.RunSnapshot{
		RunID:    "run-1",
		State:    lib.RunStateFailed,
		Config:   &cfg,
		RunDir:   "/tmp/out/crawl-x",
		Attempt:  2,
		PID:      4242,
		Progress: lib.CrawlProgress{Finished: 3, Total: 10},
		Status:   "Crawling: 3/10 pages",
		Failure:  &lib.Failure{Kind: lib.FailureNonZeroExit, ExitCode: 2},
		Statistics: &lib.CrawlStatistics{
			RequestsFinished:                 3,
			RequestsTotal:                    3,
			RequestAvgFinishedDurationMillis: &avg,
		},
		StartedAt: time.Date(2024, 5, 1, 10, 20, 30, 123000000, time.UTC),
		EndedAt:   &ended,
	}
	s, err := SnapshotToStruct(snap)
	if err != nil {
		t.Fatal(err)
	}
	got, err := SnapshotFromStruct(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != snap.RunID || got.State != snap.State || *got.Config != cfg || got.Progress != snap.Progress {
		t.Fatalf("mismatch: %+v", got)
	}
	if *got.Failure != *snap.Failure {
		t.Fatalf("expected failure %+v, got %+v", *snap.Failure, *got.Failure)
	}
	if got.Statistics == nil || *got.Statistics.RequestAvgFinishedDurationMillis != avg {
		t.Fatalf("statistics lost: %+v", got.Statistics)
	}
	if !got.StartedAt.Equal(snap.StartedAt) || !got.EndedAt.Equal(ended) {
		t.Fatalf("times lost: %v %v", got.StartedAt, got.EndedAt)
	}
}

func TestSnapshotFromStruct_Idle(t *testing.T) {
	s, err := SnapshotToStruct(lib.RunSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := SnapshotFromStruct(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != lib.RunStateIdle || got.Config != nil || got.EndedAt != nil || !got.StartedAt.IsZero() {
		t.Fatalf("expected an empty idle snapshot, got %+v", got)
	}
}

func TestEventStruct(t *testing.T) {
	progress := lib.CrawlProgress{Finished: 1, Total: 4}
	events := []lib.Event{
		lib.NewLogEvent("r", lib.StreamStderr, lib.CrawlMessage{Severity: lib.SeverityWarning, Content: "WARN slow"}),
		lib.NewStatusEvent("r", lib.StatusEvent{State: lib.RunStateRunning, Status: "Crawling: 1/4 pages", Progress: &progress}),
		lib.NewStatusEvent("r", lib.StatusEvent{State: lib.RunStateFailed, Failure: &lib.Failure{Kind: lib.FailureTimeout}}),
		lib.NewErrorEvent("r", lib.Failure{Kind: lib.FailureNonZeroExit, ExitCode: 1}, lib.CrawlMessage{Severity: lib.SeverityError, Content: "Crawl exited with code 1"}),
	}
	for i, e := range events {
		e.Sequence = uint64(i + 1)
		s, err := EventToStruct(e)
		if err != nil {
			t.Fatal(err)
		}
		got, err := EventFromStruct(s)
		if err != nil {
			t.Fatal(err)
		}
		if got.Kind != e.Kind || got.Sequence != e.Sequence || got.RunID != e.RunID || !got.Time.Equal(e.Time) {
			t.Fatalf("header mismatch: %+v vs %+v", got, e)
		}
		switch e.Kind {
		case lib.EventKindLog:
			if *got.Log != *e.Log {
				t.Fatalf("expected %+v, got %+v", *e.Log, *got.Log)
			}
		case lib.EventKindStatus:
			if got.Status.State != e.Status.State || got.Status.Status != e.Status.Status {
				t.Fatalf("expected %+v, got %+v", *e.Status, *got.Status)
			}
			if (got.Status.Progress == nil) != (e.Status.Progress == nil) || (got.Status.Failure == nil) != (e.Status.Failure == nil) {
				t.Fatalf("optional fields lost: %+v", *got.Status)
			}
		case lib.EventKindError:
			if *got.Error != *e.Error {
				t.Fatalf("expected %+v, got %+v", *e.Error, *got.Error)
			}
		}
	}
}

func TestEventFromStruct_Invariant(t *testing.T) {
	base := map[string]any{"kind": "log", "sequence": 1, "run_id": "r", "time": "2024-05-01T10:20:30Z"}
	with := func(extra map[string]any) *structpb.Struct {
		m := map[string]any{}
		for k, v := range base {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		s, err := structpb.NewStruct(m)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	logPayload := map[string]any{"stream": "stdout", "severity": "info", "content": "x"}

	if _, err := EventFromStruct(with(map[string]any{"log": logPayload})); err != nil {
		t.Fatalf("expected a valid event, got %v", err)
	}
	if _, err := EventFromStruct(with(nil)); err == nil {
		t.Fatal("expected an event without payload to be rejected")
	}
	if _, err := EventFromStruct(with(map[string]any{"kind": "status", "log": logPayload})); err == nil {
		t.Fatal("expected a kind/payload mismatch to be rejected")
	}
	two := map[string]any{"log": logPayload, "status": map[string]any{"state": "Running"}}
	if _, err := EventFromStruct(with(two)); err == nil {
		t.Fatal("expected two payloads to be rejected")
	}
	if _, err := EventFromStruct(with(map[string]any{"kind": "bogus", "log": logPayload})); err == nil {
		t.Fatal("expected an unknown kind to be rejected")
	}
	badSeverity := map[string]any{"stream": "stdout", "severity": "loud", "content": "x"}
	if _, err := EventFromStruct(with(map[string]any{"log": badSeverity})); err == nil {
		t.Fatal("expected an unknown severity to be rejected")
	}
}

func TestEventToStruct_RejectsInvalid(t *testing.T) {
	if _, err := EventToStruct(lib.Event{Kind: lib.EventKindLog, RunID: "r"}); err == nil {
		t.Fatal("expected an event without payload to be refused")
	}
}

func TestStatusMapping(t *testing.T) {
	for _, s := range codeBySentinel {
		wrapped := ToStatus(errors.Join(errors.New("context"), s.err))
		back := FromStatus(wrapped)
		if !errors.Is(back, s.err) {
			t.Fatalf("expected %v to survive the round trip, got %v", s.err, back)
		}
	}
	if FromStatus(nil) != nil {
		t.Fatal("expected nil to stay nil")
	}
}
