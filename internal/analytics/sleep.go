package analytics

import (
	"errors"
	"math"
	"sort"
	"time"

	"studydash/internal/models"
)

// ErrSleepRolesUnset means no bedtime or risetime question was assigned
var ErrSleepRolesUnset = errors.New("sleep roles unset: bedtime and risetime questions are required")

// SleepRoles maps sleep concepts to the question IDs that capture them
type SleepRoles struct {
	Bedtime    string `json:"bedtime" yaml:"bedtime"`
	Risetime   string `json:"risetime" yaml:"risetime"`
	DiaryDate  string `json:"diary_date,omitempty" yaml:"diary_date,omitempty"`
	Awakenings string `json:"awakenings,omitempty" yaml:"awakenings,omitempty"`
	NapMinutes string `json:"nap_minutes,omitempty" yaml:"nap_minutes,omitempty"`
}

// Queryable reports whether both bedtime and risetime are assigned
func (r SleepRoles) Queryable() bool {
	return r.Bedtime != "" && r.Risetime != ""
}

func (r SleepRoles) answered(answers map[string]any) bool {
	for _, q := range []string{r.Bedtime, r.Risetime, r.Awakenings, r.NapMinutes} {
		if q == "" {
			continue
		}
		if v, ok := answers[q]; ok && v != nil && v != "" {
			return true
		}
	}
	return false
}

// SleepRow is one participant night keyed by its calendar date
type SleepRow struct {
	UserID      string     `json:"user_id"`
	Date        string     `json:"date"`
	Bedtime     *time.Time `json:"bedtime,omitempty"`
	Risetime    *time.Time `json:"risetime,omitempty"`
	DurationMin *int       `json:"duration_min,omitempty"`
	Awakenings  *float64   `json:"awakenings,omitempty"`
	NapMinutes  *float64   `json:"nap_minutes,omitempty"`
}

type sleepKey struct {
	user string
	date string
}

// NormalizeSleep folds responses into one row per (user, date). The date is
// the diary-date answer, else the date of a full risetime timestamp, else the
// response time, all read in loc. Within a bucket the first parsed value of
// each field is kept. Rows come back sorted by user then date.
func NormalizeSleep(responses []models.SurveyResponse, roles SleepRoles, loc *time.Location) ([]SleepRow, error) {
	if !roles.Queryable() {
		return nil, ErrSleepRolesUnset
	}
	if loc == nil {
		loc = time.UTC
	}

	buckets := make(map[sleepKey]*SleepRow)
	for _, resp := range responses {
		if !roles.answered(resp.Responses) {
			continue
		}

		day := sleepDay(resp, roles, loc)
		key := sleepKey{user: resp.UserID, date: DateKey(day, loc)}
		row, ok := buckets[key]
		if !ok {
			row = &SleepRow{UserID: key.user, Date: key.date}
			buckets[key] = row
		}

		if row.Bedtime == nil {
			if t, ok := ParseLooseTime(resp.Responses[roles.Bedtime], day, loc); ok {
				row.Bedtime = &t
			}
		}
		if row.Risetime == nil {
			if t, ok := ParseLooseTime(resp.Responses[roles.Risetime], day, loc); ok {
				row.Risetime = &t
			}
		}
		if row.Awakenings == nil && roles.Awakenings != "" {
			if n, ok := ParseLooseNumber(resp.Responses[roles.Awakenings]); ok {
				row.Awakenings = &n
			}
		}
		if row.NapMinutes == nil && roles.NapMinutes != "" {
			if n, ok := ParseLooseNumber(resp.Responses[roles.NapMinutes]); ok {
				row.NapMinutes = &n
			}
		}
	}

	rows := make([]SleepRow, 0, len(buckets))
	for _, row := range buckets {
		if row.Bedtime != nil && row.Risetime != nil {
			d := SleepDuration(*row.Bedtime, *row.Risetime)
			row.DurationMin = &d
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].Date < rows[j].Date
	})
	return rows, nil
}

// SleepDuration returns the minutes from bedtime to risetime, wrapping past
// midnight when risetime reads earlier than bedtime
func SleepDuration(bedtime, risetime time.Time) int {
	minutes := int(math.Round(risetime.Sub(bedtime).Minutes()))
	if minutes < 0 {
		minutes += 24 * 60
	}
	return minutes
}

func sleepDay(resp models.SurveyResponse, roles SleepRoles, loc *time.Location) time.Time {
	if roles.DiaryDate != "" {
		if d, ok := ParseDate(resp.Responses[roles.DiaryDate], loc); ok {
			return d
		}
	}
	if t, ok := ParseTimestamp(resp.Responses[roles.Risetime], loc); ok {
		return startOfDay(t, loc)
	}
	return startOfDay(resp.ResponseTime, loc)
}
