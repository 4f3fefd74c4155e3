package crawlv1

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// Every message on the wire is a google.protobuf.Struct. The functions here
// are the only way in and out: decoding rejects unknown fields, wrong types
// and events that break the tag/payload invariant.

type object = map[string]any

func toStruct(m object) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// reader decodes one Struct level and remembers the first error.
type reader struct {
	path   string
	fields map[string]*structpb.Value
	seen   map[string]bool
	err    error
}

func newReader(path string, s *structpb.Struct) *reader {
	r := &reader{path: path, seen: map[string]bool{}}
	if s == nil {
		r.err = fmt.Errorf("%s: message is empty", path)
		return r
	}
	r.fields = s.GetFields()
	return r
}

func (r *reader) fail(key, format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%s.%s: %s", r.path, key, fmt.Sprintf(format, args...))
	}
}

func (r *reader) value(key string, required bool) *structpb.Value {
	r.seen[key] = true
	v, ok := r.fields[key]
	if !ok || v == nil {
		if required {
			r.fail(key, "required")
		}
		return nil
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		if required {
			r.fail(key, "required")
		}
		return nil
	}
	return v
}

func (r *reader) str(key string, required bool) string {
	v := r.value(key, required)
	if v == nil {
		return ""
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		r.fail(key, "must be a string")
		return ""
	}
	return s.StringValue
}

func (r *reader) num(key string, required bool) int64 {
	v := r.value(key, required)
	if v == nil {
		return 0
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		r.fail(key, "must be a number")
		return 0
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		r.fail(key, "must be an integer")
		return 0
	}
	return int64(f)
}

func (r *reader) boolean(key string) bool {
	v := r.value(key, false)
	if v == nil {
		return false
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		r.fail(key, "must be a bool")
		return false
	}
	return b.BoolValue
}

func (r *reader) object(key string, required bool) *structpb.Struct {
	v := r.value(key, required)
	if v == nil {
		return nil
	}
	s, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		r.fail(key, "must be an object")
		return nil
	}
	return s.StructValue
}

func (r *reader) list(key string) []*structpb.Value {
	v := r.value(key, false)
	if v == nil {
		return nil
	}
	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		r.fail(key, "must be a list")
		return nil
	}
	return l.ListValue.GetValues()
}

func (r *reader) time(key string, required bool) time.Time {
	s := r.str(key, required)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(key, "must be an RFC 3339 timestamp")
	}
	return t
}

// nested decodes a child object with its own reader and folds its error in.
func (r *reader) nested(key string, required bool, decode func(*reader)) bool {
	s := r.object(key, required)
	if s == nil {
		return false
	}
	child := newReader(r.path+"."+key, s)
	decode(child)
	if err := child.done(); err != nil && r.err == nil {
		r.err = err
	}
	return true
}

// done reports the first error, including fields nobody asked for.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for k := range r.fields {
		if !r.seen[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%s: unknown fields %s", r.path, strings.Join(unknown, ", "))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConfigToStruct encodes a crawl config.
func ConfigToStruct(cfg lib.CrawlConfig) (*structpb.Struct, error) {
	return toStruct(configObject(cfg))
}

func configObject(cfg lib.CrawlConfig) object {
	return object{
		"start_url":        cfg.StartURL,
		"match_pattern":    cfg.MatchPattern,
		"css_selector":     cfg.CSSSelector,
		"max_pages":        cfg.MaxPages,
		"output_directory": cfg.OutputDirectory,
		"output_file_name": cfg.OutputFileName,
	}
}

// ConfigFromStruct decodes a crawl config. It checks types only; use
// CrawlConfig.Validate for the content.
func ConfigFromStruct(s *structpb.Struct) (lib.CrawlConfig, error) {
	r := newReader("config", s)
	cfg := readConfig(r)
	return cfg, r.done()
}

func readConfig(r *reader) lib.CrawlConfig {
	return lib.CrawlConfig{
		StartURL:        r.str("start_url", true),
		MatchPattern:    r.str("match_pattern", false),
		CSSSelector:     r.str("css_selector", true),
		MaxPages:        int(r.num("max_pages", true)),
		OutputDirectory: r.str("output_directory", true),
		OutputFileName:  r.str("output_file_name", true),
	}
}

func progressObject(p lib.CrawlProgress) object {
	return object{"finished": p.Finished, "total": p.Total}
}

func readProgress(r *reader) lib.CrawlProgress {
	p := lib.CrawlProgress{Finished: int(r.num("finished", true)), Total: int(r.num("total", true))}
	if p.Finished < 0 || p.Total < 0 {
		r.fail("finished", "counters must not be negative")
	}
	return p
}

func failureObject(f lib.Failure) object {
	return object{"kind": string(f.Kind), "exit_code": f.ExitCode, "detail": f.Detail}
}

func readFailure(r *reader) lib.Failure {
	f := lib.Failure{
		Kind:     lib.FailureKind(r.str("kind", true)),
		ExitCode: int(r.num("exit_code", false)),
		Detail:   r.str("detail", false),
	}
	switch f.Kind {
	case lib.FailureDirectoryCreate, lib.FailureSpawn, lib.FailureTimeout, lib.FailureNonZeroExit,
		lib.FailureStop, lib.FailurePostProcessWarning, lib.FailureCrawlerReported, "":
	default:
		r.fail("kind", "unknown failure kind %q", f.Kind)
	}
	return f
}

func statisticsObject(st lib.CrawlStatistics) (object, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var m object
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func readStatistics(r *reader, key string) *lib.CrawlStatistics {
	s := r.object(key, false)
	if s == nil {
		return nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		r.fail(key, "%v", err)
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var st lib.CrawlStatistics
	if err := dec.Decode(&st); err != nil {
		r.fail(key, "%v", err)
		return nil
	}
	return &st
}

// SnapshotToStruct encodes a run snapshot.
func SnapshotToStruct(snap lib.RunSnapshot) (*structpb.Struct, error) {
	m, err := snapshotObject(snap)
	if err != nil {
		return nil, err
	}
	return toStruct(m)
}

func snapshotObject(snap lib.RunSnapshot) (object, error) {
	m := object{
		"run_id":   snap.RunID,
		"state":    snap.State.String(),
		"run_dir":  snap.RunDir,
		"attempt":  snap.Attempt,
		"pid":      snap.PID,
		"progress": progressObject(snap.Progress),
		"status":   snap.Status,
	}
	if snap.Config != nil {
		m["config"] = configObject(*snap.Config)
	}
	if snap.Failure != nil {
		m["failure"] = failureObject(*snap.Failure)
	}
	if snap.Statistics != nil {
		st, err := statisticsObject(*snap.Statistics)
		if err != nil {
			return nil, err
		}
		m["statistics"] = st
	}
	if !snap.StartedAt.IsZero() {
		m["started_at"] = formatTime(snap.StartedAt)
	}
	if snap.EndedAt != nil {
		m["ended_at"] = formatTime(*snap.EndedAt)
	}
	return m, nil
}

// SnapshotFromStruct decodes a run snapshot.
func SnapshotFromStruct(s *structpb.Struct) (lib.RunSnapshot, error) {
	r := newReader("snapshot", s)
	snap := readSnapshot(r)
	return snap, r.done()
}

func readSnapshot(r *reader) lib.RunSnapshot {
	snap := lib.RunSnapshot{
		RunID:   r.str("run_id", false),
		RunDir:  r.str("run_dir", false),
		Attempt: int(r.num("attempt", false)),
		PID:     int(r.num("pid", false)),
		Status:  r.str("status", false),
	}
	state, err := lib.ParseRunState(r.str("state", true))
	if err != nil && r.err == nil {
		r.fail("state", "%v", err)
	}
	snap.State = state

	r.nested("progress", false, func(c *reader) { snap.Progress = readProgress(c) })
	r.nested("config", false, func(c *reader) {
		cfg := readConfig(c)
		snap.Config = &cfg
	})
	r.nested("failure", false, func(c *reader) {
		f := readFailure(c)
		snap.Failure = &f
	})
	snap.Statistics = readStatistics(r, "statistics")
	snap.StartedAt = r.time("started_at", false)
	if t := r.time("ended_at", false); !t.IsZero() {
		snap.EndedAt = &t
	}
	return snap
}

// EventToStruct encodes an event. Invalid events are refused.
func EventToStruct(e lib.Event) (*structpb.Struct, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	m := object{
		"kind":     e.Kind.String(),
		"sequence": float64(e.Sequence),
		"run_id":   e.RunID,
		"time":     formatTime(e.Time),
	}
	switch e.Kind {
	case lib.EventKindLog:
		m["log"] = object{
			"stream":   e.Log.Stream.String(),
			"severity": e.Log.Message.Severity.String(),
			"content":  e.Log.Message.Content,
		}
	case lib.EventKindStatus:
		st := object{"state": e.Status.State.String(), "status": e.Status.Status}
		if e.Status.Progress != nil {
			st["progress"] = progressObject(*e.Status.Progress)
		}
		if e.Status.Failure != nil {
			st["failure"] = failureObject(*e.Status.Failure)
		}
		m["status"] = st
	case lib.EventKindError:
		m["error"] = object{
			"failure":  failureObject(e.Error.Failure),
			"severity": e.Error.Message.Severity.String(),
			"content":  e.Error.Message.Content,
		}
	}
	return toStruct(m)
}

// EventFromStruct decodes an event and checks the tag/payload invariant.
func EventFromStruct(s *structpb.Struct) (lib.Event, error) {
	r := newReader("event", s)
	var e lib.Event

	kind, err := lib.ParseEventKind(r.str("kind", true))
	if err != nil && r.err == nil {
		r.fail("kind", "%v", err)
	}
	e.Kind = kind
	if seq := r.num("sequence", true); seq < 0 {
		r.fail("sequence", "must not be negative")
	} else {
		e.Sequence = uint64(seq)
	}
	e.RunID = r.str("run_id", true)
	e.Time = r.time("time", true)

	r.nested("log", false, func(c *reader) {
		stream, err := lib.ParseStream(c.str("stream", false))
		if err != nil {
			c.fail("stream", "%v", err)
		}
		e.Log = &lib.LogEvent{Stream: stream, Message: readMessage(c)}
	})
	r.nested("status", false, func(c *reader) {
		state, err := lib.ParseRunState(c.str("state", true))
		if err != nil && c.err == nil {
			c.fail("state", "%v", err)
		}
		st := &lib.StatusEvent{State: state, Status: c.str("status", false)}
		c.nested("progress", false, func(p *reader) {
			pr := readProgress(p)
			st.Progress = &pr
		})
		c.nested("failure", false, func(f *reader) {
			fl := readFailure(f)
			st.Failure = &fl
		})
		e.Status = st
	})
	r.nested("error", false, func(c *reader) {
		ev := &lib.ErrorEvent{Message: readMessage(c)}
		c.nested("failure", true, func(f *reader) { ev.Failure = readFailure(f) })
		e.Error = ev
	})

	if err := r.done(); err != nil {
		return lib.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return lib.Event{}, fmt.Errorf("event: %w", err)
	}
	return e, nil
}

func readMessage(r *reader) lib.CrawlMessage {
	sev, err := lib.ParseSeverity(r.str("severity", true))
	if err != nil && r.err == nil {
		r.fail("severity", "%v", err)
	}
	return lib.CrawlMessage{Severity: sev, Content: r.str("content", false)}
}
