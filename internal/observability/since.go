package observability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSince is the metrics window used when none is given.
const DefaultSince = "7d"

// ParseSince turns a window like "7d", "30d" or "24h" into the instant that
// far before now. An empty string means DefaultSince.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultSince
	}
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	switch s[len(s)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
	}
}
