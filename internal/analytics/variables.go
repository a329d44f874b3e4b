package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"studydash/internal/models"
)

// zEpsilon is the smallest standard deviation treated as non-constant
const zEpsilon = 1e-9

// Variable is a selectable numeric question, identified as "module:question"
type Variable struct {
	ID         string             `json:"id"`
	ModuleID   string             `json:"module_id"`
	QuestionID string             `json:"question_id"`
	Label      string             `json:"label"`
	Options    map[string]float64 `json:"options,omitempty"`
}

// VariableID joins a module and question into a variable identifier
func VariableID(moduleID, questionID string) string {
	return moduleID + ":" + questionID
}

// ParseVariable splits a "module:question" identifier
func ParseVariable(id string) (Variable, error) {
	mod, q, ok := strings.Cut(id, ":")
	if !ok || mod == "" || q == "" {
		return Variable{}, fmt.Errorf("invalid variable %q: want module:question", id)
	}
	return Variable{ID: id, ModuleID: mod, QuestionID: q, Label: id}, nil
}

// VariablesFromCatalog lists the numeric questions of a catalog as variables
func VariablesFromCatalog(questions []models.Question) []Variable {
	vars := []Variable{}
	for _, q := range questions {
		if !q.IsNumeric() {
			continue
		}
		label := q.Text
		if label == "" {
			label = q.ID
		}
		vars = append(vars, Variable{
			ID:         VariableID(q.ModuleID, q.ID),
			ModuleID:   q.ModuleID,
			QuestionID: q.ID,
			Label:      label,
			Options:    q.NumericOptions,
		})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].ID < vars[j].ID })
	return vars
}

// ResolveVariables looks up ids in the catalog, falling back to bare
// identifiers for questions the catalog does not describe
func ResolveVariables(ids []string, catalog []Variable) ([]Variable, error) {
	byID := make(map[string]Variable, len(catalog))
	for _, v := range catalog {
		byID[v.ID] = v
	}
	out := make([]Variable, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
			continue
		}
		v, err := ParseVariable(id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Value resolves an answer, trying the option map before a numeric parse.
// Single-choice answers stored as one-element arrays are unwrapped first.
func (v Variable) Value(answer any) (float64, bool) {
	if list, ok := answer.([]any); ok && len(list) == 1 {
		answer = list[0]
	}
	if len(v.Options) > 0 {
		key := answerText(answer)
		if n, ok := v.Options[key]; ok {
			return n, true
		}
		for opt, n := range v.Options {
			if strings.EqualFold(strings.TrimSpace(opt), key) {
				return n, true
			}
		}
	}
	return ParseLooseNumber(answer)
}

// VariablePoint is one numeric observation of a variable
type VariablePoint struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Variable  string    `json:"variable"`
	Value     float64   `json:"value"`
	Label     string    `json:"label"`
}

// Bin is a time bucket size for averaging points
type Bin string

const (
	BinNone Bin = ""
	BinHour Bin = "hour"
	BinDay  Bin = "day"
)

// ParseBin validates a bin name
func ParseBin(s string) (Bin, error) {
	switch Bin(s) {
	case BinNone, BinHour, BinDay:
		return Bin(s), nil
	}
	return BinNone, fmt.Errorf("invalid bin %q: want hour or day", s)
}

// ExtractVariables reads each variable from the responses of its module.
// Unresolvable answers are skipped.
func ExtractVariables(responses []models.SurveyResponse, vars []Variable) []VariablePoint {
	points := []VariablePoint{}
	for _, resp := range responses {
		for _, v := range vars {
			if v.ModuleID != "" && v.ModuleID != resp.ModuleID {
				continue
			}
			answer, ok := resp.Responses[v.QuestionID]
			if !ok {
				continue
			}
			n, ok := v.Value(answer)
			if !ok {
				continue
			}
			points = append(points, VariablePoint{
				UserID:    resp.UserID,
				Timestamp: resp.ResponseTime,
				Variable:  v.ID,
				Value:     n,
				Label:     v.Label,
			})
		}
	}
	return points
}

type seriesKey struct {
	user     string
	variable string
}

type binKey struct {
	seriesKey
	bucket int64
}

// BinPoints floors timestamps to the bin in loc and averages the values that
// share a (user, variable, bucket) key. Output is ordered by user, variable
// and time.
func BinPoints(points []VariablePoint, bin Bin, loc *time.Location) []VariablePoint {
	if bin == BinNone {
		return points
	}
	if loc == nil {
		loc = time.UTC
	}

	type acc struct {
		point VariablePoint
		sum   float64
		n     int
	}
	buckets := make(map[binKey]*acc)
	for _, p := range points {
		start := floorTime(p.Timestamp, bin, loc)
		k := binKey{seriesKey{p.UserID, p.Variable}, start.Unix()}
		a, ok := buckets[k]
		if !ok {
			a = &acc{point: p}
			a.point.Timestamp = start
			buckets[k] = a
		}
		a.sum += p.Value
		a.n++
	}

	out := make([]VariablePoint, 0, len(buckets))
	for _, a := range buckets {
		a.point.Value = a.sum / float64(a.n)
		out = append(out, a.point)
	}
	sortPoints(out)
	return out
}

func floorTime(t time.Time, bin Bin, loc *time.Location) time.Time {
	t = t.In(loc)
	switch bin {
	case BinHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
}

// ZScore standardizes each (user, variable) series with its population mean
// and standard deviation. A constant series becomes all zeros.
func ZScore(points []VariablePoint) []VariablePoint {
	type stats struct {
		sum, sumSq float64
		n          int
	}
	series := make(map[seriesKey]*stats)
	for _, p := range points {
		k := seriesKey{p.UserID, p.Variable}
		s, ok := series[k]
		if !ok {
			s = &stats{}
			series[k] = s
		}
		s.sum += p.Value
		s.n++
	}
	for _, p := range points {
		s := series[seriesKey{p.UserID, p.Variable}]
		d := p.Value - s.sum/float64(s.n)
		s.sumSq += d * d
	}

	out := make([]VariablePoint, len(points))
	for i, p := range points {
		s := series[seriesKey{p.UserID, p.Variable}]
		mean := s.sum / float64(s.n)
		std := math.Sqrt(s.sumSq / float64(s.n))
		if std < zEpsilon {
			p.Value = 0
		} else {
			p.Value = (p.Value - mean) / std
		}
		out[i] = p
	}
	return out
}

// TransformOptions selects the post-processing steps for variable points
type TransformOptions struct {
	Bin      Bin
	ZScore   bool
	Location *time.Location
}

// Transform bins and then standardizes points as requested
func Transform(points []VariablePoint, opts TransformOptions) []VariablePoint {
	out := BinPoints(points, opts.Bin, opts.Location)
	if opts.ZScore {
		out = ZScore(out)
	}
	return out
}

func sortPoints(points []VariablePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Variable != b.Variable {
			return a.Variable < b.Variable
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}
