package lib

import (
	"errors"
	"testing"
)

func validConfig() CrawlConfig {
	return CrawlConfig{
		StartURL:        "https://example.com/docs",
		MatchPattern:    "https://example.com/docs/**",
		CSSSelector:     ".content",
		MaxPages:        10,
		OutputDirectory: "/tmp/out",
		OutputFileName:  "output.json",
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CrawlConfig)
		ok     bool
	}{
		{"valid", func(*CrawlConfig) {}, true},
		{"empty match pattern", func(c *CrawlConfig) { c.MatchPattern = "" }, true},
		{"upper-case extension", func(c *CrawlConfig) { c.OutputFileName = "OUT.JSON" }, true},
		{"missing url", func(c *CrawlConfig) { c.StartURL = "  " }, false},
		{"ftp url", func(c *CrawlConfig) { c.StartURL = "ftp://example.com" }, false},
		{"url without host", func(c *CrawlConfig) { c.StartURL = "https://" }, false},
		{"not a url", func(c *CrawlConfig) { c.StartURL = "example.com" }, false},
		{"missing selector", func(c *CrawlConfig) { c.CSSSelector = "" }, false},
		{"zero pages", func(c *CrawlConfig) { c.MaxPages = 0 }, false},
		{"negative pages", func(c *CrawlConfig) { c.MaxPages = -3 }, false},
		{"missing output dir", func(c *CrawlConfig) { c.OutputDirectory = "" }, false},
		{"missing file name", func(c *CrawlConfig) { c.OutputFileName = "" }, false},
		{"wrong extension", func(c *CrawlConfig) { c.OutputFileName = "output.txt" }, false},
		{"path in file name", func(c *CrawlConfig) { c.OutputFileName = "sub/output.json" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestCrawlConfig_EffectiveMatchPattern(t *testing.T) {
	cfg := validConfig()
	if got := cfg.EffectiveMatchPattern(); got != cfg.MatchPattern {
		t.Fatalf("got %q", got)
	}
	cfg.MatchPattern = " "
	if got := cfg.EffectiveMatchPattern(); got != MatchAll {
		t.Fatalf("expected %q, got %q", MatchAll, got)
	}
}
