package parser

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleStream = "\x1b[32mINFO\x1b[39m  PlaywrightCrawler: Starting the crawl\n" +
	"INFO  PlaywrightCrawler: Crawling: Page 1 / 10 - URL: https://example.com/docs...\r\n" +
	"\n" +
	"   \n" +
	"WARN  PlaywrightCrawler: Reclaiming failed request back to the list or queue. ünïcødé\n" +
	"ERROR PlaywrightCrawler: Request failed and reached maximum retries\n" +
	"INFO  PlaywrightCrawler: Crawling: Page 2 / 10 - URL: https://example.com/docs/a...\n" +
	"INFO  PlaywrightCrawler: All requests from the queue have been processed, the crawler will shut down.\n" +
	"trailing fragment without newline"

func collect(p *LineParser, chunks [][]byte) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, p.Feed(c)...)
	}
	return append(out, p.Flush()...)
}

func TestLineParser_CleansAndSplits(t *testing.T) {
	got := collect(NewLineParser(), [][]byte{[]byte(sampleStream)})
	want := []string{
		"Starting the crawl",
		"Crawling: Page 1 / 10 - URL: https://example.com/docs...",
		"WARN  PlaywrightCrawler: Reclaiming failed request back to the list or queue. ünïcødé",
		"ERROR PlaywrightCrawler: Request failed and reached maximum retries",
		"Crawling: Page 2 / 10 - URL: https://example.com/docs/a...",
		"All requests from the queue have been processed, the crawler will shut down.",
		"trailing fragment without newline",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("lines mismatch:\ngot=%q\nwant=%q", got, want)
	}
}

func TestLineParser_ChunkBoundariesDoNotMatter(t *testing.T) {
	data := []byte(sampleStream)
	want := collect(NewLineParser(), [][]byte{data})

	// Every single split point.
	for i := 0; i <= len(data); i++ {
		got := collect(NewLineParser(), [][]byte{data[:i], data[i:]})
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("split at %d: got=%q want=%q", i, got, want)
		}
	}

	// Byte at a time.
	chunks := make([][]byte, 0, len(data))
	for i := range data {
		chunks = append(chunks, data[i:i+1])
	}
	if got := collect(NewLineParser(), chunks); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("byte-at-a-time: got=%q want=%q", got, want)
	}

	// Random multi-way splits.
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var chunks [][]byte
		rest := data
		for len(rest) > 0 {
			n := rng.Intn(len(rest) + 1)
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		if got := collect(NewLineParser(), chunks); fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("round %d: got=%q want=%q", round, got, want)
		}
	}
}

func TestLineParser_HoldsIncompleteLine(t *testing.T) {
	p := NewLineParser()
	if got := p.Feed([]byte("Crawling: Pa")); len(got) != 0 {
		t.Fatalf("expected no lines yet, got %q", got)
	}
	if p.Buffered() != len("Crawling: Pa") {
		t.Fatalf("expected fragment to be buffered, got %d bytes", p.Buffered())
	}
	got := p.Feed([]byte("ge 3 / 10\nnext"))
	if len(got) != 1 || got[0] != "Crawling: Page 3 / 10" {
		t.Fatalf("unexpected lines: %q", got)
	}
	if got := p.Flush(); len(got) != 1 || got[0] != "next" {
		t.Fatalf("unexpected flush: %q", got)
	}
	if got := p.Flush(); got != nil {
		t.Fatalf("second flush should be empty, got %q", got)
	}
}

func TestLineParser_CapsLongLines(t *testing.T) {
	data := []byte(strings.Repeat("x", 3*MaxLineBytes+10) + "\nshort\n")

	p := NewLineParser()
	var got []string
	for len(data) > 0 {
		n := min(1000, len(data))
		got = append(got, p.Feed(data[:n])...)
		data = data[n:]
		if p.Buffered() > MaxLineBytes+1000 {
			t.Fatalf("buffer grew to %d bytes", p.Buffered())
		}
	}
	got = append(got, p.Flush()...)

	want := []int{MaxLineBytes, MaxLineBytes, MaxLineBytes, 10, len("short")}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got))
	}
	for i, line := range got {
		if len(line) != want[i] {
			t.Fatalf("line %d has %d bytes, want %d", i, len(line), want[i])
		}
	}
	if got[4] != "short" {
		t.Fatalf("line after the long one = %q", got[4])
	}
}

func TestLineParser_CapKeepsRunesWhole(t *testing.T) {
	// Byte MaxLineBytes falls inside a two-byte rune.
	data := []byte("a" + strings.Repeat("é", MaxLineBytes))
	got := collect(NewLineParser(), [][]byte{data})
	if len(got) < 2 {
		t.Fatalf("expected the line to be split, got %d lines", len(got))
	}
	if len(got[0]) != MaxLineBytes-1 {
		t.Fatalf("first line has %d bytes, want %d", len(got[0]), MaxLineBytes-1)
	}
	for i, line := range got {
		if !utf8.ValidString(line) {
			t.Fatalf("line %d is not valid UTF-8", i)
		}
	}
	if joined := strings.Join(got, ""); joined != string(data) {
		t.Fatalf("split lost bytes: %d of %d", len(joined), len(data))
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INFO Crawler: Crawling: Page 3 / 10", "Crawling: Page 3 / 10"},
		{"INFO  PlaywrightCrawler:Statistics: PlaywrightCrawler request statistics: {}", "PlaywrightCrawler request statistics: {}"},
		{"\x1b[1;31mboom\x1b[0m", "boom"},
		// Not a complete escape sequence: left alone.
		{"\x1b[12 not an escape", "\x1b[12 not an escape"},
		{"ERROR PlaywrightCrawler: failed", "ERROR PlaywrightCrawler: failed"},
		{"  plain line  ", "plain line"},
		{"INFO Crawling: Page 1 / 2", "INFO Crawling: Page 1 / 2"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLineParser_CustomPrefix(t *testing.T) {
	p := NewLineParserWithPrefix(regexp.MustCompile(`^\[crawler\]\s*`))
	got := p.Feed([]byte("[crawler] hello\nINFO Crawler: kept\n"))
	if fmt.Sprint(got) != fmt.Sprint([]string{"hello", "INFO Crawler: kept"}) {
		t.Fatalf("unexpected lines: %q", got)
	}

	p = NewLineParserWithPrefix(nil)
	got = p.Feed([]byte("INFO Crawler: kept\n"))
	if len(got) != 1 || got[0] != "INFO Crawler: kept" {
		t.Fatalf("nil prefix should strip nothing, got %q", got)
	}
}
