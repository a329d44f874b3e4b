// Package analytics turns fetched survey responses into adherence summaries,
// sleep rows, variable series and grouped views. Everything here is a pure
// function over already-fetched data.
package analytics

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var leadingNumber = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// ParseLooseNumber reads a number out of an arbitrary answer value. Strings
// are parsed by their leading numeric prefix, so "7 hours" yields 7.
func ParseLooseNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		m := leadingNumber.FindString(s)
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		f = n
	case []any:
		if len(x) != 1 {
			return 0, false
		}
		return ParseLooseNumber(x[0])
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3 PM",
	"3PM",
}

// minEpochSeconds keeps small counts and scores from being read as 1970 dates
const minEpochSeconds = 1e9

// ParseTimestamp reads a full date and time. Values without an offset are
// read in loc. Numbers are taken as Unix seconds, or milliseconds when large.
func ParseTimestamp(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		for _, layout := range timestampLayouts[1:] {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		n, ok := ParseLooseNumber(v)
		if !ok || n < minEpochSeconds {
			return time.Time{}, false
		}
		if n > 1e11 {
			return time.UnixMilli(int64(n)).In(loc), true
		}
		return time.Unix(int64(n), 0).In(loc), true
	}
}

// ParseDate reads a calendar date, either bare or as part of a timestamp,
// and returns local midnight of that date in loc
func ParseDate(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	t, ok := ParseTimestamp(v, loc)
	if !ok {
		return time.Time{}, false
	}
	return startOfDay(t, loc), true
}

// ParseClock reads a time of day such as "23:30" or "11:30 PM" and returns
// the offset from midnight
func ParseClock(v any) (time.Duration, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

// ParseLooseTime reads either a full timestamp or a time of day. A time of
// day is anchored to the local date of day.
func ParseLooseTime(v any, day time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if t, ok := ParseTimestamp(v, loc); ok {
		return t, true
	}
	offset, ok := ParseClock(v)
	if !ok {
		return time.Time{}, false
	}
	d := day.In(loc)
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	sec := int(offset % time.Minute / time.Second)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, 0, loc), true
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateKey formats t as its local calendar date
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
