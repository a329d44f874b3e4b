package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"studydash/internal/models"
)

// GroupBy selects how table rows are grouped
type GroupBy string

const (
	GroupByUser   GroupBy = "user"
	GroupByModule GroupBy = "module"
	GroupByLabel  GroupBy = "label"
)

// ParseGroupBy validates a grouping name
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupByUser, GroupByModule, GroupByLabel:
		return g, nil
	case "":
		return GroupByUser, nil
	}
	return "", fmt.Errorf("invalid grouping %q: want user, module or label", s)
}

// Group is a titled set of rows sharing a grouping key
type Group struct {
	Key   string                   `json:"key"`
	Title string                   `json:"title"`
	Rows  []models.LabeledResponse `json:"rows"`
}

// GroupResponses buckets rows by user, module or mapped label. Group keys are
// "<by>:<value>"; groups are sorted by title and rows keep their input order.
func GroupResponses(rows []models.LabeledResponse, by GroupBy, labels map[string]string) []Group {
	index := make(map[string]int)
	groups := []Group{}
	for _, r := range rows {
		var value, title string
		switch by {
		case GroupByModule:
			value = r.ModuleID
			title = r.ModuleName
			if title == "" {
				title = r.ModuleID
			}
		case GroupByLabel:
			value = Label(labels, r.UserID)
			title = value
		default:
			value = r.UserID
			title = r.UserID
		}
		key := string(by) + ":" + value
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Title: title})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].Title), strings.ToLower(groups[j].Title)
		if a != b {
			return a < b
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// CalendarCell is one participant's activity on a calendar day
type CalendarCell struct {
	UserID string `json:"user_id"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Note   string `json:"note,omitempty"`
}

// CalendarDay lists the participants active or annotated on a date
type CalendarDay struct {
	Date  string         `json:"date"`
	Cells []CalendarCell `json:"cells"`
}

// Calendar counts responses per local date and user, and attaches notes
// keyed by date then user. Days with only a note are included.
func Calendar(responses []models.SurveyResponse, loc *time.Location, labels map[string]string, notes map[string]map[string]string) []CalendarDay {
	counts := make(map[string]map[string]int)
	for _, r := range responses {
		date := DateKey(r.ResponseTime, loc)
		if counts[date] == nil {
			counts[date] = make(map[string]int)
		}
		counts[date][r.UserID]++
	}
	for date, users := range notes {
		for user, note := range users {
			if note == "" {
				continue
			}
			if counts[date] == nil {
				counts[date] = make(map[string]int)
			}
			if _, ok := counts[date][user]; !ok {
				counts[date][user] = 0
			}
		}
	}

	days := make([]CalendarDay, 0, len(counts))
	for date, users := range counts {
		day := CalendarDay{Date: date, Cells: make([]CalendarCell, 0, len(users))}
		for user, n := range users {
			day.Cells = append(day.Cells, CalendarCell{
				UserID: user,
				Label:  Label(labels, user),
				Count:  n,
				Note:   notes[date][user],
			})
		}
		sort.Slice(day.Cells, func(i, j int) bool {
			if day.Cells[i].Label != day.Cells[j].Label {
				return day.Cells[i].Label < day.Cells[j].Label
			}
			return day.Cells[i].UserID < day.Cells[j].UserID
		})
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
