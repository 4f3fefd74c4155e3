// Package parser turns the crawler's raw output into cleaned lines and
// derives severity, progress and terminal-state signals from them.
// Everything here is synchronous and allocation-light; none of it blocks.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLineBytes caps a single line. Longer runs of output without a newline
// are cut into lines of at most this size.
const MaxLineBytes = 64 << 10

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// DefaultPrefixPattern matches the log-source prefix the crawler puts in front
// of its info lines, e.g. "INFO  PlaywrightCrawler: " or
// "INFO  PlaywrightCrawler:Statistics: ". Other levels keep their prefix so
// that "ERROR ..." lines still classify as errors.
var DefaultPrefixPattern = regexp.MustCompile(`^INFO\s+[A-Za-z]*Crawler(?::[A-Za-z]+)?:\s*`)

// LineParser splits a byte stream into complete, cleaned lines.
// A trailing fragment without a newline is held until a later Feed completes it
// or it grows past MaxLineBytes.
// A LineParser is not safe for concurrent use; give each stream its own.
type LineParser struct {
	pending []byte
	prefix  *regexp.Regexp
}

func NewLineParser() *LineParser {
	return &LineParser{prefix: DefaultPrefixPattern}
}

// NewLineParserWithPrefix uses prefix instead of DefaultPrefixPattern. A nil prefix strips nothing.
func NewLineParserWithPrefix(prefix *regexp.Regexp) *LineParser {
	return &LineParser{prefix: prefix}
}

// Feed consumes chunk and returns the cleaned lines it completed, in order.
// Lines that are empty after cleaning are dropped.
func (p *LineParser) Feed(chunk []byte) []string {
	p.pending = append(p.pending, chunk...)

	var lines []string
	start := 0
	for {
		rest := p.pending[start:]
		end := bytes.IndexByte(rest, '\n')
		next := end + 1
		if end < 0 || end >= MaxLineBytes {
			if len(rest) <= MaxLineBytes {
				break
			}
			end = cutPoint(rest)
			next = end
		}
		if line := p.clean(rest[:end]); line != "" {
			lines = append(lines, line)
		}
		start += next
	}

	if start > 0 {
		rest := p.pending[start:]
		if len(rest) == 0 {
			p.pending = p.pending[:0]
		} else {
			p.pending = append(make([]byte, 0, len(rest)), rest...)
		}
	}
	return lines
}

// cutPoint is where an overlong line is split: MaxLineBytes, moved back so a
// UTF-8 sequence is never torn. rest is longer than MaxLineBytes.
func cutPoint(rest []byte) int {
	for cut := MaxLineBytes; cut > MaxLineBytes-utf8.UTFMax; cut-- {
		if utf8.RuneStart(rest[cut]) {
			return cut
		}
	}
	return MaxLineBytes
}

// Flush returns the buffered trailing fragment as a final line, if any.
// Call it once the stream has reached EOF.
func (p *LineParser) Flush() []string {
	if len(p.pending) == 0 {
		return nil
	}
	line := p.clean(p.pending)
	p.pending = nil
	if line == "" {
		return nil
	}
	return []string{line}
}

// Buffered reports how many bytes are waiting for a line terminator.
func (p *LineParser) Buffered() int {
	return len(p.pending)
}

func (p *LineParser) clean(raw []byte) string {
	return cleanWith(string(raw), p.prefix)
}

// Clean strips ANSI escape sequences, surrounding whitespace and the default log-source prefix.
func Clean(line string) string {
	return cleanWith(line, DefaultPrefixPattern)
}

func cleanWith(line string, prefix *regexp.Regexp) string {
	line = strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
	if prefix != nil {
		if loc := prefix.FindStringIndex(line); loc != nil && loc[0] == 0 {
			line = strings.TrimSpace(line[loc[1]:])
		}
	}
	return line
}
