package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"today", time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{"30 minutes ago", now.Add(-30 * time.Minute)},
		{"2 hours ago", now.Add(-2 * time.Hour)},
		{"3 days ago", now.Add(-3 * 24 * time.Hour)},
		{"1 week ago", now.Add(-7 * 24 * time.Hour)},
		{"1 month ago", now.Add(-30 * 24 * time.Hour)},
		{"2 days", now.Add(-2 * 24 * time.Hour)},
		{"2026-08-01", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-08-01T10:00:00Z", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseSince(tc.in, now)
		require.NoError(t, err, "input %q", tc.in)
		require.True(t, tc.want.Equal(got), "input %q: want %v, got %v", tc.in, tc.want, got)
	}
}

func TestParseSinceCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)
	got, err := ParseSince("Yesterday", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), got)
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"sometime", "5 fortnights ago", "ago", "-3 days"} {
		_, err := ParseSince(in, now)
		require.Error(t, err, "input %q", in)
	}
}
