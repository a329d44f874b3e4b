// Package schedule derives expected response windows and structural counts
// from a study's module definitions.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"studydash/internal/models"
)

const dateLayout = "2006-01-02"

// ParseClock parses an "HH:MM" time of day into minutes after midnight
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// window returns the start and end offsets of a module's daily window.
// An unset window spans the whole day; an end at or before the start
// runs past midnight.
func window(m models.Module) (start, end time.Duration, err error) {
	if m.WindowStart == "" && m.WindowEnd == "" {
		return 0, 24*time.Hour - time.Second, nil
	}
	s, err := ParseClock(m.WindowStart)
	if err != nil {
		return 0, 0, fmt.Errorf("module %s: %w", m.ID, err)
	}
	e, err := ParseClock(m.WindowEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("module %s: %w", m.ID, err)
	}
	if e <= s {
		e += 24 * 60
	}
	return time.Duration(s) * time.Minute, time.Duration(e)*time.Minute - time.Second, nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Occurrences lists the expected windows of every recurring module whose
// local date lies within [from, to]. Daily modules get one window per day;
// weekly modules get one every seven days counted from the from date.
// Non-repeating modules produce no windows.
func Occurrences(modules []models.Module, loc *time.Location, from, to time.Time) ([]models.ExpectedOccurrence, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := []models.ExpectedOccurrence{}
	if to.Before(from) {
		return out, nil
	}
	first := midnight(from, loc)
	last := midnight(to, loc)

	for _, m := range modules {
		var step int
		switch m.Repeat {
		case models.RepeatDaily:
			step = 1
		case models.RepeatWeekly:
			step = 7
		default:
			if m.Repeat.IsRecurring() {
				step = 1
			}
		}
		if step == 0 {
			continue
		}

		start, end, err := window(m)
		if err != nil {
			return nil, err
		}
		for day := first; !day.After(last); day = day.AddDate(0, 0, step) {
			out = append(out, models.ExpectedOccurrence{
				ModuleID: m.ID,
				Start:    wallClock(day, start, loc),
				End:      wallClock(day, end, loc),
				Date:     day.Format(dateLayout),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ModuleID < out[j].ModuleID
	})
	return out, nil
}

// wallClock adds an offset to a local midnight in wall-clock terms, so a
// window keeps its local hours across daylight saving changes
func wallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	days := int(offset / (24 * time.Hour))
	rem := offset % (24 * time.Hour)
	d := day.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(rem)
}

// ExpectedTotal is how many completions a module expects over a study
func ExpectedTotal(m models.Module, studyDays int) int {
	if m.ExpectedTotal > 0 {
		return m.ExpectedTotal
	}
	if studyDays <= 0 {
		studyDays = models.DefaultStudyDays
	}
	switch m.Repeat {
	case models.RepeatNever, "":
		return 1
	case models.RepeatWeekly:
		return (studyDays + 6) / 7
	default:
		return studyDays
	}
}

// Structure builds the structural count for a study
func Structure(study *models.Study, modules []models.Module) models.StructureCount {
	days := study.Days()
	sc := models.StructureCount{
		StudyDays:      days,
		ModuleExpected: make(map[string]int, len(modules)),
		ModuleMeta:     make(map[string]models.ModuleMeta, len(modules)),
	}
	for _, m := range modules {
		repeat := m.Repeat
		if repeat == "" {
			repeat = models.RepeatNever
		}
		sc.ModuleExpected[m.ID] = ExpectedTotal(m, days)
		sc.ModuleMeta[m.ID] = models.ModuleMeta{ModuleName: m.Name, Repeat: repeat}
	}
	return sc
}
