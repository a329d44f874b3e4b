package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRepeatIsRecurring(t *testing.T) {
	tests := []struct {
		repeat Repeat
		want   bool
	}{
		{RepeatNever, false},
		{"", false},
		{RepeatDaily, true},
		{RepeatWeekly, true},
		{"monthly", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.repeat), func(t *testing.T) {
			if got := tt.repeat.IsRecurring(); got != tt.want {
				t.Errorf("Repeat(%q).IsRecurring() = %v, want %v", tt.repeat, got, tt.want)
			}
		})
	}
}

func TestStudyDefaults(t *testing.T) {
	var nilStudy *Study
	if nilStudy.Days() != DefaultStudyDays {
		t.Errorf("nil study Days() = %d, want %d", nilStudy.Days(), DefaultStudyDays)
	}
	if nilStudy.Location() != time.UTC {
		t.Error("nil study should resolve to UTC")
	}

	s := &Study{StudyDays: 14, Timezone: "Not/AZone"}
	if s.Days() != 14 {
		t.Errorf("Days() = %d, want 14", s.Days())
	}
	if s.Location() != time.UTC {
		t.Error("invalid timezone should fall back to UTC")
	}
}

func TestExpectedOccurrenceContainsIsInclusive(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	o := ExpectedOccurrence{Start: start, End: end}

	if !o.Contains(start) || !o.Contains(end) {
		t.Error("window bounds should be inclusive")
	}
	if o.Contains(end.Add(time.Second)) || o.Contains(start.Add(-time.Second)) {
		t.Error("times outside the window should not match")
	}
}

func TestResponsePayloadRoundTripKeepsDiscriminant(t *testing.T) {
	p := SectionsPayload([]PayloadSection{{
		Title: "Sleep",
		Items: []LabeledAnswer{{QuestionID: "q1", Label: "Bedtime", Value: "23:30"}},
	}})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"kind":"sections"`) {
		t.Fatalf("missing discriminant in %s", data)
	}

	var decoded ResponsePayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	sections, ok := decoded.AsSections()
	if !ok || len(sections) != 1 || sections[0].Items[0].Label != "Bedtime" {
		t.Fatalf("unexpected sections: %+v", sections)
	}
	if _, ok := decoded.AsRaw(); ok {
		t.Error("AsRaw() should fail on a sections payload")
	}
}

func TestResponsePayloadRejectsUnknownKind(t *testing.T) {
	var p ResponsePayload
	if err := json.Unmarshal([]byte(`{"kind":"blob"}`), &p); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLabeledResponseNullPayload(t *testing.T) {
	var r LabeledResponse
	data := `{"id":7,"user_id":"p1","module_id":"mood","module_name":"Mood","payload":null}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw, ok := r.Payload.AsRaw()
	if !ok || len(raw) != 0 {
		t.Errorf("Payload = %+v, want empty raw payload", r.Payload)
	}
	if r.UserID != "p1" || r.ModuleName != "Mood" {
		t.Errorf("unexpected response %+v", r)
	}
}

func TestQuestionIsNumeric(t *testing.T) {
	if !(&Question{Type: "slider"}).IsNumeric() {
		t.Error("slider should be numeric")
	}
	if (&Question{Type: "text"}).IsNumeric() {
		t.Error("text should not be numeric")
	}
	q := &Question{Type: "choice", NumericOptions: map[string]float64{"Never": 0}}
	if !q.IsNumeric() {
		t.Error("choice with numeric options should be numeric")
	}
}
