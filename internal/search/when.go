package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince turns a human time filter into a cutoff instant. Supported
// forms: "today", "yesterday", "3 days ago" (minutes, hours, days, weeks,
// months, trailing "ago" optional), "2026-08-01", and full RFC 3339
// timestamps. An empty string means no cutoff and returns the zero time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	low := strings.ToLower(s)

	midnight := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}

	switch low {
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now.AddDate(0, 0, -1)), nil
	}

	fields := strings.Fields(low)
	if n := len(fields); n == 2 || (n == 3 && fields[2] == "ago") {
		if qty, err := strconv.Atoi(fields[0]); err == nil && qty >= 0 {
			var d time.Duration
			switch strings.TrimSuffix(fields[1], "s") {
			case "minute":
				d = time.Duration(qty) * time.Minute
			case "hour":
				d = time.Duration(qty) * time.Hour
			case "day":
				d = time.Duration(qty) * 24 * time.Hour
			case "week":
				d = time.Duration(qty) * 7 * 24 * time.Hour
			case "month":
				// calendar months vary; a fixed 30 days is close enough
				// for a search cutoff
				d = time.Duration(qty) * 30 * 24 * time.Hour
			default:
				return time.Time{}, fmt.Errorf("unknown time unit %q", fields[1])
			}
			return now.Add(-d), nil
		}
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("cannot parse time filter %q", s)
}
