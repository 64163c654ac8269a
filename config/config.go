// Package config provides configuration loading and management for otrank.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/tableau"
)

// Config represents the complete otrank configuration
type Config struct {
	Rank    RankConfig    `yaml:"rank"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Batch   BatchConfig   `yaml:"batch"`
	Watch   WatchConfig   `yaml:"watch"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RankConfig configures the ranking algorithm
type RankConfig struct {
	// MarkednessBias splits every stratum into markedness then faithfulness
	MarkednessBias bool `yaml:"markedness_bias"`
}

// InputConfig configures how tableau files are read
type InputConfig struct {
	// Delimiter is the cell separator (default: ",")
	Delimiter string `yaml:"delimiter"`
	// Glyph is the violation mark (default: "*")
	Glyph string `yaml:"glyph"`
	// MarkednessPrefix marks a constraint name as markedness (default: "*")
	MarkednessPrefix string `yaml:"markedness_prefix"`
	// Markedness lists constraints that are markedness regardless of name
	Markedness []string `yaml:"markedness,omitempty"`
	// Faithfulness lists constraints that are faithfulness regardless of name
	Faithfulness []string `yaml:"faithfulness,omitempty"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	// Format is one of text, markdown, json, yaml (default: text)
	Format string `yaml:"format"`
	// Dir, when set, receives one report file per dataset
	Dir string `yaml:"dir"`
}

// BatchConfig configures multi-dataset runs
type BatchConfig struct {
	// Workers bounds concurrent rankings (0 = number of CPUs)
	Workers int `yaml:"workers"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait for more changes before re-ranking
	Debounce time.Duration `yaml:"debounce"`
}

// NATSConfig configures report publication
type NATSConfig struct {
	// URL is the NATS server URL (empty = do not publish)
	URL string `yaml:"url"`
	// Subject receives one JSON report per run
	Subject string `yaml:"subject"`
	// Timeout bounds connecting and flushing
	Timeout time.Duration `yaml:"timeout"`
	// Bucket, when set, also keeps every report in this JetStream KV bucket
	Bucket string `yaml:"bucket"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics in watch mode (empty = off)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Rank: RankConfig{
			MarkednessBias: false,
		},
		Input: InputConfig{
			Delimiter:        ",",
			Glyph:            "*",
			MarkednessPrefix: "*",
		},
		Output: OutputConfig{
			Format: string(export.FormatText),
		},
		Batch: BatchConfig{
			Workers: 0, // One per CPU
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		NATS: NATSConfig{
			URL:     "",
			Subject: "otrank.reports",
			Timeout: 5 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	if utf8.RuneCountInString(c.Input.Glyph) != 1 {
		return fmt.Errorf("input.glyph must be a single character, got %q", c.Input.Glyph)
	}
	if c.Input.Delimiter == c.Input.Glyph {
		return fmt.Errorf("input.delimiter and input.glyph must differ")
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" && c.NATS.Bucket == "" {
		return fmt.Errorf("nats.subject or nats.bucket is required when nats.url is set")
	}
	if c.NATS.Timeout < 0 {
		return fmt.Errorf("nats.timeout must not be negative")
	}
	return nil
}

// TableauOptions converts the input section into loader options
func (c *Config) TableauOptions() tableau.Options {
	opts := tableau.DefaultOptions()
	if r, _ := utf8.DecodeRuneInString(c.Input.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	if r, _ := utf8.DecodeRuneInString(c.Input.Glyph); r != utf8.RuneError {
		opts.Glyph = r
	}
	opts.MarkednessPrefix = c.Input.MarkednessPrefix
	opts.Markedness = c.Input.Markedness
	opts.Faithfulness = c.Input.Faithfulness
	return opts
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Rank
	if other.Rank.MarkednessBias {
		c.Rank.MarkednessBias = true
	}

	// Input
	if other.Input.Delimiter != "" {
		c.Input.Delimiter = other.Input.Delimiter
	}
	if other.Input.Glyph != "" {
		c.Input.Glyph = other.Input.Glyph
	}
	if other.Input.MarkednessPrefix != "" {
		c.Input.MarkednessPrefix = other.Input.MarkednessPrefix
	}
	if len(other.Input.Markedness) > 0 {
		c.Input.Markedness = other.Input.Markedness
	}
	if len(other.Input.Faithfulness) > 0 {
		c.Input.Faithfulness = other.Input.Faithfulness
	}

	// Output
	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}

	// Batch
	if other.Batch.Workers != 0 {
		c.Batch.Workers = other.Batch.Workers
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
	if other.NATS.Timeout != 0 {
		c.NATS.Timeout = other.NATS.Timeout
	}
	if other.NATS.Bucket != "" {
		c.NATS.Bucket = other.NATS.Bucket
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
