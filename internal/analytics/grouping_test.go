package analytics

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydash/internal/models"
)

func labeled(user, module, moduleName string) models.LabeledResponse {
	return models.LabeledResponse{
		SurveyResponse: models.SurveyResponse{UserID: user, ModuleID: module},
		ModuleName:     moduleName,
	}
}

func TestGroupResponses(t *testing.T) {
	rows := []models.LabeledResponse{
		labeled("p2", "mood", "Mood"),
		labeled("p1", "consent", "consent form"),
		labeled("p2", "consent", "consent form"),
		labeled("p3", "mood", "Mood"),
	}

	titles := func(groups []Group) []string {
		var out []string
		for _, g := range groups {
			out = append(out, g.Title)
		}
		return out
	}

	byUser := GroupResponses(rows, GroupByUser, nil)
	assert.Equal(t, []string{"p1", "p2", "p3"}, titles(byUser))
	assert.Equal(t, "user:p2", byUser[1].Key)
	assert.Len(t, byUser[1].Rows, 2)
	assert.Equal(t, "mood", byUser[1].Rows[0].ModuleID, "rows keep input order")

	byModule := GroupResponses(rows, GroupByModule, nil)
	assert.Equal(t, []string{"consent form", "Mood"}, titles(byModule), "titles sort case-insensitively")

	byLabel := GroupResponses(rows, GroupByLabel, map[string]string{"p1": "Site A", "p3": "Site A"})
	assert.Equal(t, []string{"p2", "Site A"}, titles(byLabel))
	assert.Len(t, byLabel[1].Rows, 2)
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("")
	require.NoError(t, err)
	assert.Equal(t, GroupByUser, g)
	_, err = ParseGroupBy("day")
	assert.Error(t, err)
}

func TestCalendar(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	responses := []models.SurveyResponse{
		{UserID: "p1", ResponseTime: at},
		{UserID: "p1", ResponseTime: at.Add(time.Hour)},
		{UserID: "p2", ResponseTime: at.AddDate(0, 0, 1)},
	}
	notes := map[string]map[string]string{
		"2025-05-01": {"p1": "called"},
		"2025-05-03": {"p2": "dropped out"},
		"2025-05-04": {"p2": ""},
	}

	got := Calendar(responses, time.UTC, map[string]string{"p2": "Bea"}, notes)
	want := []CalendarDay{
		{Date: "2025-05-01", Cells: []CalendarCell{{UserID: "p1", Label: "p1", Count: 2, Note: "called"}}},
		{Date: "2025-05-02", Cells: []CalendarCell{{UserID: "p2", Label: "Bea", Count: 1}}},
		{Date: "2025-05-03", Cells: []CalendarCell{{UserID: "p2", Label: "Bea", Count: 0, Note: "dropped out"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Calendar() mismatch (-want +got):\n%s", diff)
	}
}

func TestUserMapping(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	responses := []models.SurveyResponse{
		{UserID: "p1", ModuleID: "intake", ResponseTime: at.Add(time.Hour), Responses: map[string]any{"name": "Later"}},
		{UserID: "p1", ModuleID: "intake", ResponseTime: at, Responses: map[string]any{"name": " Early "}},
		{UserID: "p2", ModuleID: "intake", ResponseTime: at, Responses: map[string]any{"name": ""}},
		{UserID: "p3", ModuleID: "other", ResponseTime: at, Responses: map[string]any{"name": "Wrong module"}},
		{UserID: "p4", ModuleID: "intake", ResponseTime: at, Responses: map[string]any{"name": 17.0}},
	}

	assert.Equal(t, map[string]string{"p1": "Later", "p4": "17"},
		UserMapping(responses, "intake", "name", MappingLatest))
	assert.Equal(t, map[string]string{"p1": "Early", "p4": "17"},
		UserMapping(responses, "intake", "name", MappingFirst))

	mode, err := ParseMappingMode("")
	require.NoError(t, err)
	assert.Equal(t, MappingLatest, mode)
	_, err = ParseMappingMode("median")
	assert.Error(t, err)
}

func TestLabelResponse(t *testing.T) {
	catalog := map[string]models.Question{
		"q1": {ID: "q1", Text: "How did you sleep?", Section: "Night", Position: 2},
		"q2": {ID: "q2", Text: "Mood", Position: 1},
	}
	resp := models.SurveyResponse{UserID: "p1", ModuleID: "diary", Responses: map[string]any{"q1": "well", "q2": 4.0}}

	got := LabelResponse(resp, "Diary", catalog)
	assert.Equal(t, "Diary", got.ModuleName)
	sections, ok := got.Payload.AsSections()
	require.True(t, ok)
	want := []models.PayloadSection{
		{Title: "Diary", Items: []models.LabeledAnswer{{QuestionID: "q2", Label: "Mood", Value: 4.0}}},
		{Title: "Night", Items: []models.LabeledAnswer{{QuestionID: "q1", Label: "How did you sleep?", Value: "well"}}},
	}
	assert.Equal(t, want, sections)

	resp.Responses["q9"] = "unknown"
	got = LabelResponse(resp, "Diary", catalog)
	_, ok = got.Payload.AsSections()
	assert.False(t, ok)
	raw, ok := got.Payload.AsRaw()
	require.True(t, ok)
	require.Len(t, raw, 3)
	assert.Equal(t, "q9", raw[2].QuestionID)
}
