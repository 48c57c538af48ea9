package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodIsOpen(t *testing.T) {
	opens := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	closes := opens.Add(14 * 24 * time.Hour)
	p := Period{OpensAt: opens, ClosesAt: closes, Status: StatusOpen}

	cases := []struct {
		name string
		p    Period
		now  time.Time
		want bool
	}{
		{name: "before window", p: p, now: opens.Add(-time.Second), want: false},
		{name: "at open bound", p: p, now: opens, want: true},
		{name: "inside", p: p, now: opens.Add(time.Hour), want: true},
		{name: "at close bound", p: p, now: closes, want: true},
		{name: "after window", p: p, now: closes.Add(time.Second), want: false},
		{name: "draft inside window", p: Period{OpensAt: opens, ClosesAt: closes, Status: StatusDraft}, now: opens.Add(time.Hour), want: false},
		{name: "closed inside window", p: Period{OpensAt: opens, ClosesAt: closes, Status: StatusClosed}, now: opens.Add(time.Hour), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.p.IsOpen(tc.now))
		})
	}
}

func TestValidWindowAndStatus(t *testing.T) {
	now := time.Now().UTC()
	require.True(t, ValidWindow(now, now.Add(time.Minute)))
	require.False(t, ValidWindow(now, now))
	require.False(t, ValidWindow(time.Time{}, now))

	s, ok := ParseStatus(" OPEN ")
	require.True(t, ok)
	require.Equal(t, StatusOpen, s)
	_, ok = ParseStatus("archived")
	require.False(t, ok)
}
