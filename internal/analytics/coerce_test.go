package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLooseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 3.5, want: 3.5, ok: true},
		{in: 7, want: 7, ok: true},
		{in: json.Number("12"), want: 12, ok: true},
		{in: " 42 ", want: 42, ok: true},
		{in: "7 hours", want: 7, ok: true},
		{in: "-1.5", want: -1.5, ok: true},
		{in: ".5", want: 0.5, ok: true},
		{in: "1,200", want: 1200, ok: true},
		{in: []any{"4"}, want: 4, ok: true},
		{in: []any{"4", "5"}},
		{in: "none"},
		{in: ""},
		{in: nil},
		{in: true},
	}
	for _, tt := range tests {
		got, ok := ParseLooseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseLooseNumber(%#v) ok", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-12, "ParseLooseNumber(%#v)", tt.in)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := map[string]time.Duration{
		"23:30":    23*time.Hour + 30*time.Minute,
		"06:15":    6*time.Hour + 15*time.Minute,
		"11:30 PM": 23*time.Hour + 30*time.Minute,
		"7:05am":   7*time.Hour + 5*time.Minute,
		"9 PM":     21 * time.Hour,
	}
	for in, want := range tests {
		got, ok := ParseClock(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseClock("late")
	assert.False(t, ok)
	_, ok = ParseClock(2330.0)
	assert.False(t, ok)
}

func TestParseLooseTimeAnchorsClockToDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	day := time.Date(2025, 3, 30, 0, 0, 0, 0, loc) // DST starts at 02:00

	got, ok := ParseLooseTime("23:30", day, loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 30, 23, 30, 0, 0, loc), got)

	got, ok = ParseLooseTime("2025-03-29T22:00:00Z", day, loc)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2025, 3, 29, 22, 0, 0, 0, time.UTC)), "full timestamps are used as-is")

	got, ok = ParseLooseTime("2025-03-29 22:00", day, loc)
	require.True(t, ok)
	assert.Equal(t, loc, got.Location(), "naive timestamps are read in the study zone")

	_, ok = ParseLooseTime("sometime", day, loc)
	assert.False(t, ok)
}

func TestParseTimestampEpoch(t *testing.T) {
	sec, ok := ParseTimestamp(1735689600.0, time.UTC)
	require.True(t, ok)
	assert.Equal(t, 2025, sec.Year())

	ms, ok := ParseTimestamp(1735689600000.0, time.UTC)
	require.True(t, ok)
	assert.True(t, sec.Equal(ms))

	_, ok = ParseTimestamp(3.0, time.UTC)
	assert.False(t, ok, "small numbers are not timestamps")
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-02-03", "2025/02/03", "02/03/2025", "2025-02-03T10:00:00"} {
		got, ok := ParseDate(in, time.UTC)
		require.True(t, ok, in)
		assert.Equal(t, "2025-02-03", DateKey(got, time.UTC), in)
	}
	_, ok := ParseDate("yesterday", time.UTC)
	assert.False(t, ok)
}
