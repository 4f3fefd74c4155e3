package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

var progressPattern = regexp.MustCompile(`(?i)Crawling: Page (\d+) / (\d+)`)

var terminalWords = []string{"finished", "completed", "shut down"}

// Status is what a single cleaned line says about the run.
type Status struct {
	Progress   *lib.CrawlProgress
	Terminal   bool
	Statistics *lib.CrawlStatistics
}

// Extract looks for a progress marker, a terminal marker and a statistics payload in a cleaned line.
// It is pure: the same line always yields the same Status.
func Extract(line string) Status {
	var st Status

	text := line
	if at := statisticsPayload(line); at >= 0 {
		// Key names like "requestsFinished" inside the payload are not terminal markers,
		// even when the payload itself does not parse.
		st.Statistics = parseStatistics(line[at:])
		text = line[:at]
	}

	if m := progressPattern.FindStringSubmatch(text); m != nil {
		st.Progress = &lib.CrawlProgress{Finished: atoiOrZero(m[1]), Total: atoiOrZero(m[2])}
	}

	lower := strings.ToLower(text)
	for _, w := range terminalWords {
		if strings.Contains(lower, w) {
			st.Terminal = true
			break
		}
	}
	return st
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// statisticsPayload returns the offset of the JSON payload in a
// "... request statistics: {json}" line, or -1.
func statisticsPayload(line string) int {
	open := strings.IndexByte(line, '{')
	if open < 0 || !strings.Contains(strings.ToLower(line[:open]), "statistics") {
		return -1
	}
	return open
}

func parseStatistics(payload string) *lib.CrawlStatistics {
	end := strings.LastIndexByte(payload, '}')
	if end < 0 {
		return nil
	}
	var stats lib.CrawlStatistics
	if err := json.Unmarshal([]byte(payload[:end+1]), &stats); err != nil {
		return nil
	}
	return &stats
}

// Analysis bundles everything derived from one cleaned line.
type Analysis struct {
	Text     string
	Severity lib.Severity
	Status   Status
}

func Analyze(line string) Analysis {
	return Analysis{Text: line, Severity: Classify(line), Status: Extract(line)}
}

// IsStatusLine reports whether the line should update the displayed crawl status.
func (a Analysis) IsStatusLine() bool {
	return a.Status.Progress != nil || a.Status.Terminal
}
