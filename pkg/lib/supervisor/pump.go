package supervisor

import (
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/parser"
)

type lineMsg struct {
	proc     *process
	stream   lib.Stream
	analysis parser.Analysis
}

// pump is the io.Writer behind one of the crawler's output streams. Lines are
// parsed and classified as they arrive and handed to the loop in order; a
// Write returns only once the loop has taken every line it completed.
type pump struct {
	s      *Supervisor
	proc   *process
	stream lib.Stream
	parser *parser.LineParser
}

func newPump(s *Supervisor, p *process, stream lib.Stream) *pump {
	return &pump{s: s, proc: p, stream: stream, parser: parser.NewLineParser()}
}

// Write never fails: the pipe has to keep draining even after the supervisor is gone.
func (p *pump) Write(b []byte) (int, error) {
	p.deliver(p.parser.Feed(b))
	return len(b), nil
}

// flush hands over a trailing line without a newline. Call it after the stream hit EOF.
func (p *pump) flush() {
	p.deliver(p.parser.Flush())
}

func (p *pump) deliver(lines []string) {
	for _, line := range lines {
		msg := lineMsg{proc: p.proc, stream: p.stream, analysis: parser.Analyze(line)}
		select {
		case p.s.lines <- msg:
		case <-p.s.loopDone:
			return
		}
	}
}
