package handlers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"studydash/internal/validation"
)

const dateLayout = "2006-01-02"

// queryParams reads typed query parameters, collecting failures per key
type queryParams struct {
	values url.Values
	errs   validation.Errors
}

func newQueryParams(values url.Values) *queryParams {
	return &queryParams{values: values, errs: validation.Errors{}}
}

func (q *queryParams) getString(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

func (q *queryParams) getInt(key string, def int) int {
	raw := q.getString(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.errs[key] = "must be an integer"
		return def
	}
	return n
}

func (q *queryParams) getID(key string) int64 {
	raw := q.getString(key)
	if raw == "" {
		q.errs[key] = "is required"
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		q.errs[key] = "must be a positive integer"
		return 0
	}
	return n
}

func (q *queryParams) getBool(key string) bool {
	switch strings.ToLower(q.getString(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// getTime accepts RFC 3339 or a bare date. A bare date is read in loc and
// resolves to the start of the day, or to its last second when endOfDay is
// set, so "to" stays inclusive.
func (q *queryParams) getTime(key string, loc *time.Location, endOfDay bool) time.Time {
	raw := q.getString(key)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		q.errs[key] = "must be RFC 3339 or YYYY-MM-DD"
		return time.Time{}
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Second)
	}
	return d
}

func (q *queryParams) err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return q.errs
}
