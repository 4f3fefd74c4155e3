package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

const (
	defaultMaxPages       = 50
	defaultOutputFileName = "output.json"
)

func defaultOutputDirectory() string {
	return filepath.Join(xdg.DataHome, "crawl-runner", "crawls")
}

// crawlFlags are shared by start and run. A YAML file given with --config
// supplies the base; flags that were set explicitly win over it.
type crawlFlags struct {
	file string
	cfg  lib.CrawlConfig
}

func addCrawlFlags(cmd *cobra.Command, f *crawlFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "config", "c", "", "YAML file with the crawl config")
	fs.StringVar(&f.cfg.StartURL, "url", "", "URL to start crawling from")
	fs.StringVar(&f.cfg.MatchPattern, "match", "", "glob of URLs to follow (default: all)")
	fs.StringVar(&f.cfg.CSSSelector, "selector", "", "CSS selector of the content to extract")
	fs.IntVar(&f.cfg.MaxPages, "max-pages", defaultMaxPages, "maximum number of pages to crawl")
	fs.StringVar(&f.cfg.OutputDirectory, "output-dir", defaultOutputDirectory(), "directory the run directories are created in")
	fs.StringVar(&f.cfg.OutputFileName, "output-file", defaultOutputFileName, "name of the crawl output file")
}

func (f *crawlFlags) resolve(cmd *cobra.Command) (lib.CrawlConfig, error) {
	if f.file == "" {
		return f.cfg, nil
	}
	cfg, err := loadCrawlConfigFile(f.file)
	if err != nil {
		return lib.CrawlConfig{}, err
	}

	fs := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if fs.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	override("url", &cfg.StartURL, f.cfg.StartURL)
	override("match", &cfg.MatchPattern, f.cfg.MatchPattern)
	override("selector", &cfg.CSSSelector, f.cfg.CSSSelector)
	override("output-dir", &cfg.OutputDirectory, f.cfg.OutputDirectory)
	override("output-file", &cfg.OutputFileName, f.cfg.OutputFileName)
	if fs.Changed("max-pages") || cfg.MaxPages == 0 {
		cfg.MaxPages = f.cfg.MaxPages
	}
	return cfg, nil
}

func loadCrawlConfigFile(path string) (lib.CrawlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lib.CrawlConfig{}, fmt.Errorf("read crawl config: %w", err)
	}
	var cfg lib.CrawlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return lib.CrawlConfig{}, fmt.Errorf("parse crawl config %s: %w", path, err)
	}
	return cfg, nil
}
