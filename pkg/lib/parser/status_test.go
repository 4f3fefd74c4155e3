package parser

import (
	"testing"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

func TestExtract_Progress(t *testing.T) {
	st := Extract("Crawling: Page 3 / 10 - URL: https://example.com")
	if st.Progress == nil || *st.Progress != (lib.CrawlProgress{Finished: 3, Total: 10}) {
		t.Fatalf("unexpected progress: %+v", st.Progress)
	}
	if st.Terminal {
		t.Fatalf("progress line must not be terminal")
	}

	st = Extract("crawling: page 7 / 9")
	if st.Progress == nil || st.Progress.Finished != 7 || st.Progress.Total != 9 {
		t.Fatalf("match should be case-insensitive, got %+v", st.Progress)
	}

	st = Extract("Crawling: Page 99999999999999999999999 / 10")
	if st.Progress == nil || st.Progress.Finished != 0 || st.Progress.Total != 10 {
		t.Fatalf("unparsable number should default to 0, got %+v", st.Progress)
	}

	if st := Extract("Page 3 of 10"); st.Progress != nil {
		t.Fatalf("unexpected progress for unrelated line: %+v", st.Progress)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	line := "Crawling: Page 4 / 8"
	a, b := Extract(line), Extract(line)
	if *a.Progress != *b.Progress {
		t.Fatalf("same line produced different progress: %+v vs %+v", a.Progress, b.Progress)
	}
}

func TestExtract_Terminal(t *testing.T) {
	for _, line := range []string{
		"Crawl finished.",
		"Crawl COMPLETED",
		"the crawler will shut down.",
	} {
		if !Extract(line).Terminal {
			t.Errorf("expected %q to be terminal", line)
		}
	}
	if Extract("shutting down soon").Terminal {
		t.Errorf("'shutting down' is not a terminal marker")
	}
}

func TestExtract_Statistics(t *testing.T) {
	line := `PlaywrightCrawler request statistics: {"requestAvgFailedDurationMillis":null,"requestAvgFinishedDurationMillis":1234.5,"requestsFinishedPerMinute":12,"requestsFailedPerMinute":0,"requestTotalDurationMillis":12345,"requestsTotal":10,"crawlerRuntimeMillis":50000,"requestsFinished":10,"requestsFailed":0}`
	st := Extract(line)
	if st.Statistics == nil {
		t.Fatalf("expected statistics")
	}
	if st.Statistics.RequestsFinished != 10 || st.Statistics.RequestsTotal != 10 || st.Statistics.CrawlerRuntimeMillis != 50000 {
		t.Fatalf("unexpected statistics: %+v", st.Statistics)
	}
	if st.Statistics.RequestAvgFinishedDurationMillis == nil || *st.Statistics.RequestAvgFinishedDurationMillis != 1234.5 {
		t.Fatalf("unexpected avg duration: %v", st.Statistics.RequestAvgFinishedDurationMillis)
	}
	if st.Terminal {
		t.Fatalf("requestsFinished inside the payload must not end the run")
	}

	if st := Extract(`Final request statistics: {"requestsFinished": }`); st.Statistics != nil || st.Terminal {
		t.Fatalf("expected malformed payload to be ignored, got %+v", st)
	}

	if st := Extract(`Crawl finished {not json}`); st.Statistics != nil || !st.Terminal {
		t.Fatalf("braces without a statistics label are plain text: %+v", st)
	}
}

func TestAnalyze(t *testing.T) {
	a := Analyze("Crawl finished.")
	if a.Severity != lib.SeveritySuccess || !a.Status.Terminal || !a.IsStatusLine() {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	a = Analyze("Fetching robots.txt")
	if a.IsStatusLine() {
		t.Fatalf("plain line is not a status line: %+v", a)
	}
}
