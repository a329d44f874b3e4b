package analytics

import (
	"math"
	"sort"
	"time"

	"studydash/internal/models"
)

// ModuleCount is a user's expected and completed count for one module
type ModuleCount struct {
	Expected  int `json:"expected"`
	Completed int `json:"completed"`
}

// UserSummary is a participant's adherence across the study's modules
type UserSummary struct {
	UserID     string                 `json:"user_id"`
	Label      string                 `json:"label"`
	Baseline   time.Time              `json:"baseline"`
	Expected   int                    `json:"expected"`
	Completed  int                    `json:"completed"`
	Completion int                    `json:"completion"`
	PerModule  map[string]ModuleCount `json:"per_module"`
}

// AdherenceInput gathers everything the aggregator joins
type AdherenceInput struct {
	Responses []models.SurveyResponse
	Structure models.StructureCount
	// Windows holds each user's expected occurrences. A missing entry counts
	// as no windows.
	Windows map[string][]models.ExpectedOccurrence
	Labels  map[string]string
}

// Baselines returns each user's earliest response time
func Baselines(responses []models.SurveyResponse) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, r := range responses {
		if b, ok := out[r.UserID]; !ok || r.ResponseTime.Before(b) {
			out[r.UserID] = r.ResponseTime
		}
	}
	return out
}

// WindowRange is the span of expected occurrences fetched for a user:
// from the baseline through study_days + 1 days later
func WindowRange(baseline time.Time, studyDays int) (from, to time.Time) {
	if studyDays <= 0 {
		studyDays = models.DefaultStudyDays
	}
	return baseline, baseline.AddDate(0, 0, studyDays+1)
}

// Completion is round(100 * completed / expected), or 0 with nothing expected
func Completion(completed, expected int) int {
	if expected <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(expected)))
}

// Label returns the mapped label for a user, or the raw ID when unmapped
func Label(labels map[string]string, userID string) string {
	if l := labels[userID]; l != "" {
		return l
	}
	return userID
}

// SummarizeAdherence computes per-user adherence. Non-repeating modules
// count as complete once the user has any response to them. Recurring
// modules count the user's windows that contain at least one response to
// the module, bounds inclusive. Every per-module count is clamped to its
// expected total. Users without responses are left out.
func SummarizeAdherence(in AdherenceInput) []UserSummary {
	byUser := make(map[string][]models.SurveyResponse)
	for _, r := range in.Responses {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}
	baselines := Baselines(in.Responses)
	modules := moduleIDs(in)

	out := make([]UserSummary, 0, len(byUser))
	for userID, rows := range byUser {
		windows := groupWindows(in.Windows[userID])
		times := responseTimes(rows)

		sum := UserSummary{
			UserID:    userID,
			Label:     Label(in.Labels, userID),
			Baseline:  baselines[userID],
			PerModule: make(map[string]ModuleCount, len(modules)),
		}
		for _, mod := range modules {
			c := countModule(mod, in.Structure, windows[mod], times[mod])
			sum.PerModule[mod] = c
			sum.Expected += c.Expected
			sum.Completed += c.Completed
		}
		sum.Completion = Completion(sum.Completed, sum.Expected)
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func countModule(mod string, sc models.StructureCount, windows []models.ExpectedOccurrence, times []time.Time) ModuleCount {
	expected, hasExpected := sc.ModuleExpected[mod]
	meta, hasMeta := sc.ModuleMeta[mod]

	recurring := meta.Repeat.IsRecurring()
	if !hasMeta {
		recurring = len(windows) > 0
	}

	if !recurring {
		if !hasExpected {
			expected = 1
		}
		completed := 0
		if len(times) > 0 {
			completed = 1
		}
		return ModuleCount{Expected: expected, Completed: min(completed, expected)}
	}

	if !hasExpected {
		expected = len(windows)
	}
	hits := 0
	for _, w := range windows {
		for _, t := range times {
			if w.Contains(t) {
				hits++
				break
			}
		}
	}
	return ModuleCount{Expected: expected, Completed: min(hits, len(windows), expected)}
}

// moduleIDs lists the modules in the structure, or the modules seen in
// responses and windows when the structure is empty
func moduleIDs(in AdherenceInput) []string {
	set := make(map[string]struct{})
	for id := range in.Structure.ModuleExpected {
		set[id] = struct{}{}
	}
	for id := range in.Structure.ModuleMeta {
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		for _, r := range in.Responses {
			set[r.ModuleID] = struct{}{}
		}
		for _, ws := range in.Windows {
			for _, w := range ws {
				set[w.ModuleID] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func groupWindows(ws []models.ExpectedOccurrence) map[string][]models.ExpectedOccurrence {
	out := make(map[string][]models.ExpectedOccurrence)
	for _, w := range ws {
		out[w.ModuleID] = append(out[w.ModuleID], w)
	}
	return out
}

func responseTimes(rows []models.SurveyResponse) map[string][]time.Time {
	out := make(map[string][]time.Time)
	for _, r := range rows {
		out[r.ModuleID] = append(out[r.ModuleID], r.ResponseTime)
	}
	return out
}
