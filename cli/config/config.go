package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/sluice/dispatch"
	"github.com/pithecene-io/sluice/journal"
	"github.com/pithecene-io/sluice/policy"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice serve flags.
// CLI flags always override config values.
type Config struct {
	RunID    string `yaml:"run_id"`
	Strategy string `yaml:"strategy"`

	Group              GroupConfig `yaml:"group"`
	SequentialCapacity int         `yaml:"sequential_capacity"`
	IntakeCapacity     int         `yaml:"intake_capacity"`
	SnapshotCapacity   int         `yaml:"snapshot_capacity"`
	MaxParallel        int         `yaml:"max_parallel"`

	Retry   RetryConfig   `yaml:"retry"`
	Feeds   FeedsConfig   `yaml:"feeds"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// GroupConfig holds grouped-lane defaults from the config file.
type GroupConfig struct {
	// Capacity bounds each grouped queue.
	Capacity int `yaml:"capacity"`
	// Key selects the grouping tag: "type" (the default) groups by
	// intent type, "field:<name>" groups by a payload field.
	Key string `yaml:"key"`
}

// RetryConfig holds transformation retry defaults from the config file.
type RetryConfig struct {
	Mode       string `yaml:"mode"`
	MaxRetries int64  `yaml:"max_retries"`
}

// FeedsConfig selects the intake sources for a run.
type FeedsConfig struct {
	Stdin     bool                `yaml:"stdin"`
	Generator GeneratorFeedConfig `yaml:"generator"`
	Redis     RedisFeedConfig     `yaml:"redis"`
}

// GeneratorFeedConfig configures the synthetic intent generator.
// A zero Count disables the feed.
type GeneratorFeedConfig struct {
	Count       int      `yaml:"count"`
	Interval    Duration `yaml:"interval"`
	Types       []string `yaml:"types,omitempty"`
	Concurrency string   `yaml:"concurrency,omitempty"`
}

// RedisFeedConfig configures the Redis pub/sub intake. An empty URL
// disables the feed.
type RedisFeedConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel,omitempty"`
}

// SinksConfig selects downstream event publishers. A sink with an
// empty URL is disabled.
type SinksConfig struct {
	Redis   RedisSinkConfig   `yaml:"redis"`
	Webhook WebhookSinkConfig `yaml:"webhook"`
}

// RedisSinkConfig configures the Redis pub/sub publisher.
type RedisSinkConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// WebhookSinkConfig configures the HTTP webhook publisher.
type WebhookSinkConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// JournalConfig holds journal defaults from the config file.
type JournalConfig struct {
	Backend  string   `yaml:"backend"`
	Root     string   `yaml:"root"`
	S3       S3Config `yaml:"s3"`
	Batch    int      `yaml:"batch"`
	Interval Duration `yaml:"interval"`
}

// S3Config holds S3 journal backend settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string, so a resolved config
// round-trips through yaml.Marshal.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// GroupKeyField returns the payload field name when the group key is
// "field:<name>", and "" for type-based grouping.
func (g GroupConfig) GroupKeyField() string {
	if rest, ok := strings.CutPrefix(g.Key, "field:"); ok {
		return rest
	}
	return ""
}

// Validate checks the values no downstream component would otherwise
// reject at construction: enum fields, group key syntax, and negative
// capacities. URL formats are left to the components that dial them.
func (c *Config) Validate() error {
	if _, err := dispatch.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := policy.FromConfig(c.Retry.Mode, c.Retry.MaxRetries); err != nil {
		return err
	}

	switch key := c.Group.Key; {
	case key == "" || key == "type":
	case strings.HasPrefix(key, "field:"):
		if c.Group.GroupKeyField() == "" {
			return fmt.Errorf("group key %q names no payload field", key)
		}
	default:
		return fmt.Errorf("unknown group key %q (want type or field:<name>)", key)
	}

	for name, n := range map[string]int{
		"group.capacity":      c.Group.Capacity,
		"sequential_capacity": c.SequentialCapacity,
		"intake_capacity":     c.IntakeCapacity,
		"snapshot_capacity":   c.SnapshotCapacity,
		"max_parallel":        c.MaxParallel,
	} {
		if n < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, n)
		}
	}

	if c.Feeds.Generator.Count < 0 {
		return fmt.Errorf("feeds.generator.count must be >= 0, got %d", c.Feeds.Generator.Count)
	}

	switch b := journal.Backend(c.Journal.Backend); b {
	case "", journal.BackendFS, journal.BackendMemory, journal.BackendS3:
	default:
		return fmt.Errorf("unknown journal backend %q", b)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}
