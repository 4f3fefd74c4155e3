package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/supervisor"
)

const (
	envPrefix             = "CRAWLD"
	defaultAddress        = "localhost:50061"
	defaultMetricsAddress = "localhost:9464"
	defaultHistoryLimit   = 20
	maxHistoryLimit       = 500
	localIdentity         = "local"
)

// Config is the daemon configuration. Every key can be set in the config file
// or through CRAWLD_<KEY>, e.g. CRAWLD_MAX_RETRIES=0.
type Config struct {
	Address        string
	MetricsAddress string
	LogLevel       string
	Development    bool

	// Insecure serves plaintext gRPC and treats every client as "local".
	Insecure  bool
	TLSKey    string
	TLSCert   string
	CATLSCert string

	CrawlerCommand  []string
	Timeout         time.Duration
	Retry           supervisor.RetryPolicy
	StopGrace       time.Duration
	CompletionGrace time.Duration
	MemoryHigh      int64

	HistoryDir   string
	HistoryLimit int
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("address", defaultAddress)
	v.SetDefault("metrics_address", defaultMetricsAddress)
	v.SetDefault("log_level", "info")
	v.SetDefault("development", false)
	v.SetDefault("insecure", false)
	v.SetDefault("tls_key", "")
	v.SetDefault("tls_cert", "")
	v.SetDefault("ca_tls_cert", "")
	v.SetDefault("crawler_command", strings.Join(supervisor.DefaultCrawlerCommand, " "))
	v.SetDefault("timeout", supervisor.DefaultTimeout)
	v.SetDefault("max_retries", supervisor.DefaultRetryPolicy.MaxRetries)
	v.SetDefault("retry_backoff", supervisor.DefaultRetryPolicy.Backoff)
	v.SetDefault("retry_multiplier", supervisor.DefaultRetryPolicy.Multiplier)
	v.SetDefault("retry_max_backoff", supervisor.DefaultRetryPolicy.MaxBackoff)
	v.SetDefault("stop_grace", supervisor.DefaultStopGrace)
	v.SetDefault("completion_grace", supervisor.DefaultCompletionGrace)
	v.SetDefault("memory_high", int64(2)<<30)
	v.SetDefault("history_dir", filepath.Join(xdg.DataHome, "crawl-runner"))
	v.SetDefault("history_limit", defaultHistoryLimit)
	return v
}

// loadConfig reads file (if not empty) on top of the defaults and the environment.
func loadConfig(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Address:        strings.TrimSpace(v.GetString("address")),
		MetricsAddress: strings.TrimSpace(v.GetString("metrics_address")),
		LogLevel:       v.GetString("log_level"),
		Development:    v.GetBool("development"),
		Insecure:       v.GetBool("insecure"),
		TLSKey:         v.GetString("tls_key"),
		TLSCert:        v.GetString("tls_cert"),
		CATLSCert:      v.GetString("ca_tls_cert"),
		CrawlerCommand: strings.Fields(v.GetString("crawler_command")),
		Timeout:        v.GetDuration("timeout"),
		Retry: supervisor.RetryPolicy{
			MaxRetries: v.GetInt("max_retries"),
			Backoff:    v.GetDuration("retry_backoff"),
			Multiplier: v.GetFloat64("retry_multiplier"),
			MaxBackoff: v.GetDuration("retry_max_backoff"),
		},
		StopGrace:       v.GetDuration("stop_grace"),
		CompletionGrace: v.GetDuration("completion_grace"),
		MemoryHigh:      v.GetInt64("memory_high"),
		HistoryDir:      v.GetString("history_dir"),
		HistoryLimit:    v.GetInt("history_limit"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	if !c.Insecure && (c.TLSKey == "" || c.TLSCert == "" || c.CATLSCert == "") {
		return fmt.Errorf("missing TLS configuration; require %[1]s_TLS_KEY, %[1]s_TLS_CERT, %[1]s_CA_TLS_CERT or %[1]s_INSECURE=true", envPrefix)
	}
	if len(c.CrawlerCommand) == 0 {
		return errors.New("crawler_command is empty")
	}
	if c.Timeout < 0 || c.StopGrace < 0 || c.CompletionGrace < 0 {
		return errors.New("timeout and grace periods must not be negative")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return errors.New("retry settings must not be negative")
	}
	if c.HistoryDir == "" {
		return errors.New("history_dir is required")
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > maxHistoryLimit {
		return fmt.Errorf("history_limit must be between 1 and %d", maxHistoryLimit)
	}
	return nil
}

func (c Config) supervisorOptions() []supervisor.Option {
	return []supervisor.Option{
		supervisor.WithTimeout(c.Timeout),
		supervisor.WithRetryPolicy(c.Retry),
		supervisor.WithStopGrace(c.StopGrace),
		supervisor.WithCompletionGrace(c.CompletionGrace),
		supervisor.WithMemoryHigh(c.MemoryHigh),
	}
}
