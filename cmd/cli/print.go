package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func printStatusTable(w io.Writer, snap lib.RunSnapshot) {
	if snap.RunID == "" {
		fmt.Fprintln(w, "No crawl has run yet.")
		return
	}
	rows := [][2]string{
		{"ID", snap.RunID},
		{"STATE", snap.State.String()},
		{"STATUS", snap.Status},
		{"PROGRESS", formatProgress(snap.Progress)},
		{"ATTEMPT", strconv.Itoa(snap.Attempt)},
		{"DIRECTORY", snap.RunDir},
		{"STARTED", formatTime(snap.StartedAt)},
	}
	if snap.Config != nil {
		rows = append(rows, [2]string{"URL", snap.Config.StartURL})
	}
	if snap.PID != 0 {
		rows = append(rows, [2]string{"PID", strconv.Itoa(snap.PID)})
	}
	if snap.EndedAt != nil {
		rows = append(rows, [2]string{"ENDED", formatTime(*snap.EndedAt)})
	}
	if snap.Failure != nil {
		rows = append(rows, [2]string{"FAILURE", snap.Failure.String()})
	}
	if st := snap.Statistics; st != nil {
		rows = append(rows, [2]string{"REQUESTS", fmt.Sprintf("%d finished, %d failed", st.RequestsFinished, st.RequestsFailed)})
	}

	keyW := 0
	for _, r := range rows {
		keyW = max(keyW, len(r[0]))
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %s\n", pad(r[0], keyW), r[1])
	}
}

func printHistoryTable(w io.Writer, runs []lib.RunSnapshot) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No finished crawls recorded.")
		return
	}
	header := []string{"ID", "STATE", "STARTED", "DURATION", "PROGRESS", "URL"}
	table := [][]string{header}
	for _, r := range runs {
		duration := ""
		if r.EndedAt != nil {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		state := r.State.String()
		if r.Failure != nil {
			state += " (" + r.Failure.Reason() + ")"
		}
		url := ""
		if r.Config != nil {
			url = r.Config.StartURL
		}
		table = append(table, []string{r.RunID, state, formatTime(r.StartedAt), duration, formatProgress(r.Progress), url})
	}

	widths := make([]int, len(header))
	for _, row := range table {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}
	parts := make([]string, len(widths))
	for i, wd := range widths {
		parts[i] = strings.Repeat("-", wd)
	}
	sep := "+-" + strings.Join(parts, "-+-") + "-+\n"

	fmt.Fprint(w, sep)
	for i, row := range table {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = pad(cell, widths[j])
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
		if i == 0 {
			fmt.Fprint(w, sep)
		}
	}
	fmt.Fprint(w, sep)
}

// formatEvent renders one event as a single line, e.g.
// "12:00:01 [warning] WARN slow response".
func formatEvent(e lib.Event) string {
	ts := e.Time.Local().Format("15:04:05")
	switch e.Kind {
	case lib.EventKindLog:
		return fmt.Sprintf("%s [%s] %s", ts, e.Log.Message.Severity, e.Log.Message.Content)
	case lib.EventKindError:
		return fmt.Sprintf("%s [%s] %s (%s)", ts, e.Error.Message.Severity, e.Error.Message.Content, e.Error.Failure.Reason())
	case lib.EventKindStatus:
		line := fmt.Sprintf("%s [status] %s", ts, e.Status.State)
		if e.Status.Status != "" {
			line += ": " + e.Status.Status
		}
		if e.Status.Progress != nil && e.Status.Progress.Total > 0 {
			line += " (" + formatProgress(*e.Status.Progress) + ")"
		}
		if e.Status.Failure != nil {
			line += " - " + e.Status.Failure.String()
		}
		return line
	}
	return fmt.Sprintf("%s [%s]", ts, e.Kind)
}

func formatProgress(p lib.CrawlProgress) string {
	if p.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", p.Finished, p.Total)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
