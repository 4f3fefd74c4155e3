package lib

import (
	"fmt"
	"net/url"
	"strings"
)

// OutputExtension is the extension every crawl output file name must carry.
const OutputExtension = ".json"

// MatchAll is handed to the crawler when CrawlConfig.MatchPattern is empty.
const MatchAll = "**"

// CrawlConfig holds the parameters for one crawl. It is treated as immutable once a run starts.
type CrawlConfig struct {
	StartURL        string `yaml:"start_url" json:"start_url"`
	MatchPattern    string `yaml:"match_pattern" json:"match_pattern"`
	CSSSelector     string `yaml:"css_selector" json:"css_selector"`
	MaxPages        int    `yaml:"max_pages" json:"max_pages"`
	OutputDirectory string `yaml:"output_directory" json:"output_directory"`
	OutputFileName  string `yaml:"output_file_name" json:"output_file_name"`
}

// Validate checks the config without touching the filesystem.
// The returned error wraps ErrInvalidConfig and names the first offending field.
func (c CrawlConfig) Validate() error {
	if strings.TrimSpace(c.StartURL) == "" {
		return invalid("start url is required")
	}
	u, err := url.Parse(strings.TrimSpace(c.StartURL))
	if err != nil {
		return invalid("start url %q is malformed: %v", c.StartURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("start url %q must use http or https", c.StartURL)
	}
	if u.Host == "" {
		return invalid("start url %q has no host", c.StartURL)
	}
	if strings.TrimSpace(c.CSSSelector) == "" {
		return invalid("css selector is required")
	}
	if c.MaxPages < 1 {
		return invalid("max pages must be at least 1, got %d", c.MaxPages)
	}
	if strings.TrimSpace(c.OutputDirectory) == "" {
		return invalid("output directory is required")
	}
	name := strings.TrimSpace(c.OutputFileName)
	if name == "" {
		return invalid("output file name is required")
	}
	if !strings.HasSuffix(strings.ToLower(name), OutputExtension) {
		return invalid("output file name %q must end in %s", c.OutputFileName, OutputExtension)
	}
	if strings.ContainsAny(name, `/\`) {
		return invalid("output file name %q must not contain a path separator", c.OutputFileName)
	}
	return nil
}

// EffectiveMatchPattern returns the glob passed to the crawler.
func (c CrawlConfig) EffectiveMatchPattern() string {
	if strings.TrimSpace(c.MatchPattern) == "" {
		return MatchAll
	}
	return c.MatchPattern
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
