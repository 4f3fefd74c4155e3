package supervisor

import (
	"errors"
	"os/exec"
	"strconv"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// Launcher builds the command for one crawl attempt. outputPath is where the
// crawler must write its results; it lives inside the run directory.
type Launcher interface {
	Command(cfg lib.CrawlConfig, outputPath string) (*exec.Cmd, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(cfg lib.CrawlConfig, outputPath string) (*exec.Cmd, error)

func (f LauncherFunc) Command(cfg lib.CrawlConfig, outputPath string) (*exec.Cmd, error) {
	return f(cfg, outputPath)
}

// DefaultCrawlerCommand runs gpt-crawler through npx.
var DefaultCrawlerCommand = []string{"npx", "--yes", "@builder.io/gpt-crawler"}

// CLILauncher runs the gpt-crawler command line tool.
type CLILauncher struct {
	// Argv is the executable followed by any fixed leading arguments.
	Argv []string
	// Env is appended to the supervisor's environment.
	Env []string
}

// NewCLILauncher returns a launcher for command, or DefaultCrawlerCommand when empty.
func NewCLILauncher(command ...string) *CLILauncher {
	if len(command) == 0 {
		command = DefaultCrawlerCommand
	}
	return &CLILauncher{Argv: append([]string(nil), command...)}
}

func (l *CLILauncher) Command(cfg lib.CrawlConfig, outputPath string) (*exec.Cmd, error) {
	if len(l.Argv) == 0 || l.Argv[0] == "" {
		return nil, errors.New("crawler command is empty")
	}
	args := append(append([]string(nil), l.Argv[1:]...), CrawlerArgs(cfg, outputPath)...)
	cmd := exec.Command(l.Argv[0], args...)
	if len(l.Env) > 0 {
		cmd.Env = append(cmd.Environ(), l.Env...)
	}
	return cmd, nil
}

// CrawlerArgs is the entire contract with the crawler: where to start, what
// to follow, what to extract, how much, and where to write it.
func CrawlerArgs(cfg lib.CrawlConfig, outputPath string) []string {
	return []string{
		"--url", cfg.StartURL,
		"--match", cfg.EffectiveMatchPattern(),
		"--selector", cfg.CSSSelector,
		"--maxPagesToCrawl", strconv.Itoa(cfg.MaxPages),
		"--outputFileName", outputPath,
	}
}
