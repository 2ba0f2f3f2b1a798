package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration stored in JSON as a string such as "50ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DiffConfig tunes build-to-build comparison.
type DiffConfig struct {
	DurationTolerance Duration `json:"duration_tolerance"` // Largest duration change still reported as unchanged
}

// TraceConfig tunes causality traces.
type TraceConfig struct {
	Limit int `json:"limit"` // Maximum nodes returned by why/impact; 0 means unlimited
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// ReportConfig controls terminal rendering.
type ReportConfig struct {
	Color bool `json:"color"`
}

// Config is the top-level configuration.
type Config struct {
	Diff    DiffConfig    `json:"diff"`
	Trace   TraceConfig   `json:"trace"`
	Logging LoggingConfig `json:"logging"`
	Report  ReportConfig  `json:"report"`
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.Diff.DurationTolerance < 0 {
		return fmt.Errorf("diff.duration_tolerance must not be negative, got %s", c.Diff.DurationTolerance.Std())
	}
	if c.Trace.Limit < 0 {
		return fmt.Errorf("trace.limit must not be negative, got %d", c.Trace.Limit)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}
