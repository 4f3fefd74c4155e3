package lib

import (
	"fmt"
	"strings"
	"time"
)

// RunState is the lifecycle state of a crawl run.
type RunState int

const (
	RunStateIdle RunState = iota
	RunStateStarting
	RunStateRunning
	RunStateStopping
	RunStateCompleted
	RunStateFailed
)

var runStateNames = [...]string{"Idle", "Starting", "Running", "Stopping", "Completed", "Failed"}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return fmt.Sprintf("RunState(%d)", int(s))
	}
	return runStateNames[s]
}

// IsTerminal reports whether no further transitions are possible without a new Start.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// IsLive reports whether a run in this state still owns (or is about to own) a subprocess.
func (s RunState) IsLive() bool {
	return s == RunStateStarting || s == RunStateRunning || s == RunStateStopping
}

// ParseRunState is the inverse of RunState.String. Matching is case-insensitive.
func ParseRunState(s string) (RunState, error) {
	for i, name := range runStateNames {
		if strings.EqualFold(name, s) {
			return RunState(i), nil
		}
	}
	return RunStateIdle, fmt.Errorf("unknown run state %q", s)
}

// Severity tags a CrawlMessage.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeveritySuccess
)

var severityNames = [...]string{"info", "warning", "error", "success"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(name, s) {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// CrawlMessage is one classified line of crawl output, or a message emitted by the supervisor itself.
type CrawlMessage struct {
	Severity Severity
	Content  string
}

// CrawlProgress counts pages. Finished never exceeds Total once Total is known.
type CrawlProgress struct {
	Finished int `json:"finished"`
	Total    int `json:"total"`
}

// Advance merges a newly observed progress value into p.
// Both counters are non-decreasing within a run, so a replayed or
// out-of-order progress line can never move the bar backwards.
func (p CrawlProgress) Advance(next CrawlProgress) CrawlProgress {
	out := CrawlProgress{
		Finished: max(p.Finished, next.Finished, 0),
		Total:    max(p.Total, next.Total, 0),
	}
	if out.Total > 0 && out.Finished > out.Total {
		out.Finished = out.Total
	}
	return out
}

// CrawlStatistics is the request statistics payload the crawler logs periodically and on shutdown.
type CrawlStatistics struct {
	RequestsFinished                 int      `json:"requestsFinished"`
	RequestsFailed                   int      `json:"requestsFailed"`
	RequestsTotal                    int      `json:"requestsTotal"`
	RequestAvgFinishedDurationMillis *float64 `json:"requestAvgFinishedDurationMillis"`
	RequestsFinishedPerMinute        float64  `json:"requestsFinishedPerMinute"`
	RequestsFailedPerMinute          float64  `json:"requestsFailedPerMinute"`
	RequestTotalDurationMillis       float64  `json:"requestTotalDurationMillis"`
	CrawlerRuntimeMillis             float64  `json:"crawlerRuntimeMillis"`
}

// FailureKind names one entry of the error taxonomy that can end (or annotate) a run.
type FailureKind string

const (
	FailureDirectoryCreate    FailureKind = "DirectoryCreateFailed"
	FailureSpawn              FailureKind = "SpawnFailed"
	FailureTimeout            FailureKind = "Timeout"
	FailureNonZeroExit        FailureKind = "NonZeroExit"
	FailureStop               FailureKind = "StopFailed"
	FailurePostProcessWarning FailureKind = "PostProcessWarning"
	// FailureCrawlerReported is used when the crawler itself prints a terminal line with error severity.
	FailureCrawlerReported FailureKind = "CrawlerReported"
)

// Failure describes why a run failed, or a non-fatal problem attached to an ErrorEvent.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	ExitCode int         `json:"exit_code,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// Reason renders the failure the way it is shown to users, e.g. "NonZeroExit(2)".
func (f Failure) Reason() string {
	if f.Kind == FailureNonZeroExit {
		return fmt.Sprintf("%s(%d)", f.Kind, f.ExitCode)
	}
	return string(f.Kind)
}

func (f Failure) String() string {
	if f.Detail == "" {
		return f.Reason()
	}
	return f.Reason() + ": " + f.Detail
}

// RunSnapshot is a point-in-time view of the current (or most recent) run.
type RunSnapshot struct {
	RunID      string
	State      RunState
	Config     *CrawlConfig
	RunDir     string
	Attempt    int
	PID        int
	Progress   CrawlProgress
	Status     string
	Failure    *Failure
	Statistics *CrawlStatistics
	StartedAt  time.Time
	EndedAt    *time.Time
}
