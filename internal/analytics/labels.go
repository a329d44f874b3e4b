package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"studydash/internal/models"
)

// MappingMode picks which answer labels a user when several exist
type MappingMode string

const (
	MappingFirst  MappingMode = "first"
	MappingLatest MappingMode = "latest"
)

// ParseMappingMode validates a mode, defaulting to latest
func ParseMappingMode(s string) (MappingMode, error) {
	switch strings.ToLower(s) {
	case "", "latest", "last":
		return MappingLatest, nil
	case "first":
		return MappingFirst, nil
	}
	return "", fmt.Errorf("invalid mapping mode %q: want first or latest", s)
}

// UserMapping derives user_id -> label from the answers to an identifier
// question. Blank answers are ignored. With MappingFirst the earliest answer
// wins, otherwise the most recent one.
func UserMapping(responses []models.SurveyResponse, moduleID, questionID string, mode MappingMode) map[string]string {
	type pick struct {
		label string
		resp  models.SurveyResponse
	}
	chosen := make(map[string]pick)
	for _, r := range responses {
		if moduleID != "" && r.ModuleID != moduleID {
			continue
		}
		label := answerText(r.Responses[questionID])
		if label == "" {
			continue
		}
		cur, ok := chosen[r.UserID]
		switch {
		case !ok:
		case mode == MappingFirst && !r.ResponseTime.Before(cur.resp.ResponseTime):
			continue
		case mode != MappingFirst && r.ResponseTime.Before(cur.resp.ResponseTime):
			continue
		}
		chosen[r.UserID] = pick{label: label, resp: r}
	}

	out := make(map[string]string, len(chosen))
	for user, p := range chosen {
		out[user] = p.label
	}
	return out
}

func answerText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			if s := answerText(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// LabelResponse attaches module and question labels to a response. When
// every answered question is in the catalog the payload is grouped into
// sections, otherwise it falls back to the raw answer list.
func LabelResponse(resp models.SurveyResponse, moduleName string, catalog map[string]models.Question) models.LabeledResponse {
	ids := make([]string, 0, len(resp.Responses))
	for id := range resp.Responses {
		ids = append(ids, id)
	}

	known := true
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			known = false
			break
		}
	}

	out := models.LabeledResponse{SurveyResponse: resp, ModuleName: moduleName}
	if !known || len(ids) == 0 {
		sort.Strings(ids)
		raw := make([]models.RawAnswer, 0, len(ids))
		for _, id := range ids {
			raw = append(raw, models.RawAnswer{QuestionID: id, Value: resp.Responses[id]})
		}
		out.Payload = models.RawPayload(raw)
		return out
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := catalog[ids[i]], catalog[ids[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})

	index := make(map[string]int)
	sections := []models.PayloadSection{}
	for _, id := range ids {
		q := catalog[id]
		title := q.Section
		if title == "" {
			title = moduleName
		}
		i, ok := index[title]
		if !ok {
			i = len(sections)
			index[title] = i
			sections = append(sections, models.PayloadSection{Title: title})
		}
		label := q.Text
		if label == "" {
			label = q.ID
		}
		sections[i].Items = append(sections[i].Items, models.LabeledAnswer{
			QuestionID: id,
			Label:      label,
			Value:      resp.Responses[id],
		})
	}
	out.Payload = models.SectionsPayload(sections)
	return out
}
