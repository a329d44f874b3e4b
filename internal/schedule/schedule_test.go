package schedule

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"studydash/internal/models"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "08:30", want: 510},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "8", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOccurrencesDaily(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	modules := []models.Module{
		{ID: "consent", Repeat: models.RepeatNever},
		{ID: "mood", Repeat: models.RepeatDaily, WindowStart: "08:00", WindowEnd: "10:00"},
	}
	from := time.Date(2025, 3, 8, 12, 0, 0, 0, loc)
	to := time.Date(2025, 3, 10, 1, 0, 0, 0, loc)

	got, err := Occurrences(modules, loc, from, to)
	if err != nil {
		t.Fatalf("Occurrences() error = %v", err)
	}

	var dates []string
	for _, o := range got {
		if o.ModuleID != "mood" {
			t.Errorf("unexpected module %s", o.ModuleID)
		}
		if h := o.Start.In(loc).Hour(); h != 8 {
			t.Errorf("%s window starts at %d:00 local, want 8:00", o.Date, h)
		}
		dates = append(dates, o.Date)
	}
	if diff := cmp.Diff([]string{"2025-03-08", "2025-03-09", "2025-03-10"}, dates); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
}

func TestOccurrencesOvernightAndWeekly(t *testing.T) {
	modules := []models.Module{
		{ID: "sleep", Repeat: models.RepeatDaily, WindowStart: "20:00", WindowEnd: "02:00"},
		{ID: "weekly", Repeat: models.RepeatWeekly},
	}
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 13)

	got, err := Occurrences(modules, time.UTC, from, to)
	if err != nil {
		t.Fatalf("Occurrences() error = %v", err)
	}

	var sleep, weekly []models.ExpectedOccurrence
	for _, o := range got {
		switch o.ModuleID {
		case "sleep":
			sleep = append(sleep, o)
		case "weekly":
			weekly = append(weekly, o)
		}
	}
	if len(sleep) != 14 || len(weekly) != 2 {
		t.Fatalf("got %d sleep and %d weekly windows, want 14 and 2", len(sleep), len(weekly))
	}
	wantEnd := time.Date(2025, 1, 2, 1, 59, 59, 0, time.UTC)
	if !sleep[0].End.Equal(wantEnd) {
		t.Errorf("overnight window ends %v, want %v", sleep[0].End, wantEnd)
	}
	if weekly[1].Date != "2025-01-08" {
		t.Errorf("second weekly window on %s, want 2025-01-08", weekly[1].Date)
	}
	if !weekly[0].Contains(time.Date(2025, 1, 1, 23, 59, 59, 0, time.UTC)) {
		t.Error("unset window should cover the whole day")
	}
}

func TestOccurrencesInvalidWindow(t *testing.T) {
	modules := []models.Module{{ID: "bad", Repeat: models.RepeatDaily, WindowStart: "9am", WindowEnd: "10:00"}}
	now := time.Now()
	if _, err := Occurrences(modules, time.UTC, now, now); err == nil {
		t.Error("expected an error for a malformed window")
	}
}

func TestStructure(t *testing.T) {
	study := &models.Study{StudyDays: 10}
	modules := []models.Module{
		{ID: "consent", Name: "Consent"},
		{ID: "mood", Name: "Mood", Repeat: models.RepeatDaily},
		{ID: "review", Name: "Review", Repeat: models.RepeatWeekly},
		{ID: "custom", Name: "Custom", Repeat: models.RepeatDaily, ExpectedTotal: 4},
	}

	got := Structure(study, modules)
	want := models.StructureCount{
		StudyDays:      10,
		ModuleExpected: map[string]int{"consent": 1, "mood": 10, "review": 2, "custom": 4},
		ModuleMeta: map[string]models.ModuleMeta{
			"consent": {ModuleName: "Consent", Repeat: models.RepeatNever},
			"mood":    {ModuleName: "Mood", Repeat: models.RepeatDaily},
			"review":  {ModuleName: "Review", Repeat: models.RepeatWeekly},
			"custom":  {ModuleName: "Custom", Repeat: models.RepeatDaily},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Structure() mismatch (-want +got):\n%s", diff)
	}

	if d := Structure(&models.Study{}, nil).StudyDays; d != models.DefaultStudyDays {
		t.Errorf("default study days = %d, want %d", d, models.DefaultStudyDays)
	}
}
