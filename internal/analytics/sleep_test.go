package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydash/internal/models"
)

var sleepRoles = SleepRoles{
	Bedtime:    "bed",
	Risetime:   "rise",
	DiaryDate:  "diary",
	Awakenings: "wake",
	NapMinutes: "nap",
}

func sleepResponse(user string, at time.Time, answers map[string]any) models.SurveyResponse {
	return models.SurveyResponse{UserID: user, ModuleID: "sleep", ResponseTime: at, Responses: answers}
}

func TestSleepDurationWrapsMidnight(t *testing.T) {
	rows, err := NormalizeSleep([]models.SurveyResponse{
		sleepResponse("p1", time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), map[string]any{"bed": "23:30", "rise": "06:15"}),
	}, sleepRoles, time.UTC)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].DurationMin)
	assert.Equal(t, 405, *rows[0].DurationMin)
	assert.Equal(t, "2025-01-02", rows[0].Date)
}

func TestSleepDurationFullTimestamps(t *testing.T) {
	bed := time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)
	rise := time.Date(2025, 1, 2, 6, 15, 0, 0, time.UTC)
	assert.Equal(t, 405, SleepDuration(bed, rise))
	assert.Equal(t, 405, SleepDuration(bed, rise.AddDate(0, 0, -1)), "same-day clock reading wraps")
}

func TestNormalizeSleepRequiresRoles(t *testing.T) {
	_, err := NormalizeSleep(nil, SleepRoles{Bedtime: "bed"}, time.UTC)
	assert.ErrorIs(t, err, ErrSleepRolesUnset)
}

func TestNormalizeSleepDayResolution(t *testing.T) {
	submitted := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	rows, err := NormalizeSleep([]models.SurveyResponse{
		sleepResponse("diary", submitted, map[string]any{"diary": "2025-01-05", "bed": "22:00", "rise": "2025-01-07T07:00:00Z"}),
		sleepResponse("rise", submitted, map[string]any{"bed": "22:00", "rise": "2025-01-07T07:00:00Z"}),
		sleepResponse("stamp", submitted, map[string]any{"bed": "22:00", "rise": "07:00"}),
	}, sleepRoles, time.UTC)
	require.NoError(t, err)

	dates := map[string]string{}
	for _, r := range rows {
		dates[r.UserID] = r.Date
	}
	assert.Equal(t, map[string]string{
		"diary": "2025-01-05",
		"rise":  "2025-01-07",
		"stamp": "2025-01-10",
	}, dates)
}

func TestNormalizeSleepFirstWins(t *testing.T) {
	day := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	rows, err := NormalizeSleep([]models.SurveyResponse{
		sleepResponse("p1", day, map[string]any{"bed": "22:00", "wake": "bad"}),
		sleepResponse("p1", day.Add(time.Hour), map[string]any{"bed": "01:00", "rise": "07:00", "wake": 2.0, "nap": "30 min"}),
		sleepResponse("p1", day.Add(2*time.Hour), map[string]any{"rise": "09:00", "wake": 5.0}),
		sleepResponse("p1", day, map[string]any{"other": "ignored"}),
	}, sleepRoles, time.UTC)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, 22, r.Bedtime.Hour())
	assert.Equal(t, 7, r.Risetime.Hour())
	require.NotNil(t, r.Awakenings)
	assert.Equal(t, 2.0, *r.Awakenings, "unparseable values do not claim the field")
	require.NotNil(t, r.NapMinutes)
	assert.Equal(t, 30.0, *r.NapMinutes)
	assert.Equal(t, 9*60, *r.DurationMin)
}

func TestNormalizeSleepSortedAndPartial(t *testing.T) {
	rows, err := NormalizeSleep([]models.SurveyResponse{
		sleepResponse("b", time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), map[string]any{"bed": "23:00"}),
		sleepResponse("a", time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC), map[string]any{"rise": "07:00"}),
		sleepResponse("a", time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), map[string]any{"wake": 1.0}),
	}, sleepRoles, time.UTC)
	require.NoError(t, err)

	var keys []string
	for _, r := range rows {
		keys = append(keys, r.UserID+" "+r.Date)
		assert.Nil(t, r.DurationMin, "duration needs both ends")
	}
	assert.Equal(t, []string{"a 2025-01-01", "a 2025-01-03", "b 2025-01-02"}, keys)
}

func TestNormalizeSleepUsesStudyZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 05:00 UTC on the 2nd is still the evening of the 1st in Los Angeles
	at := time.Date(2025, 1, 2, 5, 0, 0, 0, time.UTC)
	rows, err := NormalizeSleep([]models.SurveyResponse{
		sleepResponse("p1", at, map[string]any{"bed": "22:30", "rise": "06:00"}),
	}, sleepRoles, loc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-01-01", rows[0].Date)
	assert.Equal(t, loc, rows[0].Bedtime.Location())
	assert.Equal(t, 450, *rows[0].DurationMin)
}
