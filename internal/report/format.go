package report

import (
	"slices"
	"strings"
	"time"
)

// formatDuration rounds to a precision that reads well next to its magnitude.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(100 * time.Microsecond).String()
	}
	return d.String()
}

func signedDuration(d time.Duration) string {
	if d > 0 {
		return "+" + formatDuration(d)
	}
	if d < 0 {
		return "-" + formatDuration(-d)
	}
	return "0s"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
