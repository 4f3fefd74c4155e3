package lib

import (
	"errors"
	"fmt"
	"time"
)

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventKindLog EventKind = iota + 1
	EventKindStatus
	EventKindError
)

func (k EventKind) String() string {
	switch k {
	case EventKindLog:
		return "log"
	case EventKindStatus:
		return "status"
	case EventKindError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

func ParseEventKind(s string) (EventKind, error) {
	for _, k := range []EventKind{EventKindLog, EventKindStatus, EventKindError} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Stream identifies where a log line came from.
type Stream int

const (
	StreamSupervisor Stream = iota
	StreamStdout
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "supervisor"
	}
}

func ParseStream(s string) (Stream, error) {
	switch s {
	case "supervisor", "":
		return StreamSupervisor, nil
	case "stdout":
		return StreamStdout, nil
	case "stderr":
		return StreamStderr, nil
	}
	return StreamSupervisor, fmt.Errorf("unknown stream %q", s)
}

// LogEvent carries one CrawlMessage.
type LogEvent struct {
	Stream  Stream
	Message CrawlMessage
}

// StatusEvent reports a state transition or a new status line.
type StatusEvent struct {
	State    RunState
	Status   string
	Progress *CrawlProgress
	Failure  *Failure
}

// ErrorEvent reports an entry of the error taxonomy. Message severity is
// error, or warning for FailurePostProcessWarning.
type ErrorEvent struct {
	Failure Failure
	Message CrawlMessage
}

// Event is the tagged variant delivered by the event stream.
// Exactly one of Log, Status and Error is set, matching Kind.
type Event struct {
	Kind     EventKind
	Sequence uint64
	RunID    string
	Time     time.Time

	Log    *LogEvent
	Status *StatusEvent
	Error  *ErrorEvent
}

func NewLogEvent(runID string, stream Stream, msg CrawlMessage) Event {
	return Event{Kind: EventKindLog, RunID: runID, Time: time.Now(), Log: &LogEvent{Stream: stream, Message: msg}}
}

func NewStatusEvent(runID string, status StatusEvent) Event {
	return Event{Kind: EventKindStatus, RunID: runID, Time: time.Now(), Status: &status}
}

func NewErrorEvent(runID string, failure Failure, msg CrawlMessage) Event {
	return Event{Kind: EventKindError, RunID: runID, Time: time.Now(), Error: &ErrorEvent{Failure: failure, Message: msg}}
}

// Message returns the CrawlMessage carried by log and error events.
func (e Event) Message() (CrawlMessage, bool) {
	switch {
	case e.Kind == EventKindLog && e.Log != nil:
		return e.Log.Message, true
	case e.Kind == EventKindError && e.Error != nil:
		return e.Error.Message, true
	}
	return CrawlMessage{}, false
}

// Validate checks the tag/payload invariant.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("event has no run id")
	}
	set := 0
	for _, ok := range []bool{e.Log != nil, e.Status != nil, e.Error != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("event must carry exactly one payload, got %d", set)
	}
	switch e.Kind {
	case EventKindLog:
		if e.Log == nil {
			return errors.New("log event without log payload")
		}
	case EventKindStatus:
		if e.Status == nil {
			return errors.New("status event without status payload")
		}
	case EventKindError:
		if e.Error == nil {
			return errors.New("error event without error payload")
		}
		if e.Error.Failure.Kind == "" {
			return errors.New("error event without failure kind")
		}
	default:
		return fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
	return nil
}
