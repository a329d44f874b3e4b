package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SurveyResponse is one participant submission to a module. Responses maps
// question IDs to raw answer values as submitted.
type SurveyResponse struct {
	ID           int64          `json:"id"`
	StudyID      int64          `json:"study_id"`
	UserID       string         `json:"user_id"`
	ModuleID     string         `json:"module_id"`
	ResponseTime time.Time      `json:"response_time"`
	Responses    map[string]any `json:"responses"`
}

// LabeledResponse is a SurveyResponse joined with module and question labels
type LabeledResponse struct {
	SurveyResponse
	ModuleName string          `json:"module_name"`
	Payload    ResponsePayload `json:"payload"`
}

// PayloadKind discriminates ResponsePayload
type PayloadKind string

const (
	PayloadSections PayloadKind = "sections"
	PayloadRaw      PayloadKind = "raw"
)

// LabeledAnswer is an answer with its question text
type LabeledAnswer struct {
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
	Value      any    `json:"value"`
}

// PayloadSection groups labeled answers under a catalog section title
type PayloadSection struct {
	Title string          `json:"title"`
	Items []LabeledAnswer `json:"items"`
}

// RawAnswer is an answer whose question is missing from the catalog
type RawAnswer struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// ResponsePayload holds either structured sections or the raw fallback list.
// Check Kind (or use the As accessors) before reading.
type ResponsePayload struct {
	Kind     PayloadKind
	sections []PayloadSection
	raw      []RawAnswer
}

// SectionsPayload builds a structured payload
func SectionsPayload(sections []PayloadSection) ResponsePayload {
	return ResponsePayload{Kind: PayloadSections, sections: sections}
}

// RawPayload builds a fallback payload
func RawPayload(raw []RawAnswer) ResponsePayload {
	return ResponsePayload{Kind: PayloadRaw, raw: raw}
}

// AsSections returns the sections when Kind is PayloadSections
func (p ResponsePayload) AsSections() ([]PayloadSection, bool) {
	if p.Kind != PayloadSections {
		return nil, false
	}
	return p.sections, true
}

// AsRaw returns the raw answers when Kind is PayloadRaw
func (p ResponsePayload) AsRaw() ([]RawAnswer, bool) {
	if p.Kind != PayloadRaw {
		return nil, false
	}
	return p.raw, true
}

type payloadWire struct {
	Kind     PayloadKind      `json:"kind"`
	Sections []PayloadSection `json:"sections,omitempty"`
	Raw      []RawAnswer      `json:"raw,omitempty"`
}

func (p ResponsePayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadSections:
		return json.Marshal(payloadWire{Kind: p.Kind, Sections: p.sections})
	case PayloadRaw:
		return json.Marshal(payloadWire{Kind: p.Kind, Raw: p.raw})
	case "":
		return json.Marshal(payloadWire{Kind: PayloadRaw, Raw: []RawAnswer{}})
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

func (p *ResponsePayload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = RawPayload([]RawAnswer{})
		return nil
	}
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case PayloadSections:
		*p = SectionsPayload(w.Sections)
	case PayloadRaw:
		*p = RawPayload(w.Raw)
	default:
		return fmt.Errorf("unknown payload kind %q", w.Kind)
	}
	return nil
}

// Facets lists the distinct participants and modules that have responses
type Facets struct {
	Users   []string      `json:"users"`
	Modules []FacetModule `json:"modules"`
}

// FacetModule is a module that appears in a study's responses
type FacetModule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExpectedOccurrence is a scheduled window in which a module response counts as on time
type ExpectedOccurrence struct {
	ModuleID string    `json:"module_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Date     string    `json:"date"`
}

// Contains reports whether t falls within [Start, End]
func (o ExpectedOccurrence) Contains(t time.Time) bool {
	return !t.Before(o.Start) && !t.After(o.End)
}

// ModuleMeta carries the repeat policy the adherence rules depend on
type ModuleMeta struct {
	ModuleName string `json:"module_name"`
	Repeat     Repeat `json:"repeat"`
}

// StructureCount is a study's structural expectations per module
type StructureCount struct {
	StudyDays      int                   `json:"study_days"`
	ModuleExpected map[string]int        `json:"per_module"`
	ModuleMeta     map[string]ModuleMeta `json:"module_meta"`
}
