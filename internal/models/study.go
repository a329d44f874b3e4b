package models

import "time"

// DefaultStudyDays is used when a study has no configured length
const DefaultStudyDays = 7

// Study is a research study whose participants submit module responses
type Study struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StudyDays   int       `json:"study_days"`
	Timezone    string    `json:"timezone"`
	CreatedAt   time.Time `json:"created_at"`
}

// Location resolves the study timezone, falling back to UTC
func (s *Study) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Days returns StudyDays or the default when unset
func (s *Study) Days() int {
	if s == nil || s.StudyDays <= 0 {
		return DefaultStudyDays
	}
	return s.StudyDays
}

// Repeat is a module's recurrence policy
type Repeat string

const (
	RepeatNever  Repeat = "never"
	RepeatDaily  Repeat = "daily"
	RepeatWeekly Repeat = "weekly"
)

// IsRecurring reports whether completion is counted per occurrence window.
// Unknown values are treated as recurring.
func (r Repeat) IsRecurring() bool {
	return r != RepeatNever && r != ""
}

// Module is a named survey instrument within a study
type Module struct {
	ID            string `json:"id"`
	StudyID       int64  `json:"study_id"`
	Name          string `json:"name"`
	Repeat        Repeat `json:"repeat"`
	WindowStart   string `json:"window_start,omitempty"` // "HH:MM" in the study timezone
	WindowEnd     string `json:"window_end,omitempty"`
	ExpectedTotal int    `json:"expected_total,omitempty"`
}

// Question is one item in the study's question catalog
type Question struct {
	ID             string             `json:"id"`
	StudyID        int64              `json:"study_id"`
	ModuleID       string             `json:"module_id"`
	Text           string             `json:"text"`
	Section        string             `json:"section,omitempty"`
	Type           string             `json:"type"`
	Subtype        string             `json:"subtype,omitempty"`
	NumericOptions map[string]float64 `json:"numeric_options,omitempty"`
	Position       int                `json:"position"`
}

// IsNumeric reports whether answers can be read as numbers
func (q *Question) IsNumeric() bool {
	switch q.Type {
	case "number", "numeric", "slider", "scale", "likert", "rating":
		return true
	}
	return len(q.NumericOptions) > 0
}

// Membership links a dashboard user to a study they may browse
type Membership struct {
	UserID  int64 `json:"user_id"`
	StudyID int64 `json:"study_id"`
}
