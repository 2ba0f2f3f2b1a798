package config

import "time"

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Diff: DiffConfig{
			DurationTolerance: Duration(50 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Report: ReportConfig{
			Color: true,
		},
	}
}
