package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"studydash/internal/analytics"
	"studydash/internal/service"
)

// AnalyticsHandler serves schedule and derived analytics endpoints
type AnalyticsHandler struct {
	studyService     *service.StudyService
	analyticsService *service.AnalyticsService
	log              *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(studyService *service.StudyService, analyticsService *service.AnalyticsService, log *zap.Logger) *AnalyticsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsHandler{studyService: studyService, analyticsService: analyticsService, log: log}
}

// Expected lists expected occurrence windows
func (h *AnalyticsHandler) Expected(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r.URL.Query())
	studyID := q.getID("study_id")
	if err := q.err(); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, studyID)
	if !ok {
		return
	}

	tz := q.getString("tz")
	loc := study.Location()
	if l, err := time.LoadLocation(tz); tz != "" && err == nil {
		loc = l
	}
	query := service.ExpectedQuery{
		UserID:   q.getString("user_id"),
		From:     q.getTime("from", loc, false),
		To:       q.getTime("to", loc, true),
		Timezone: tz,
	}
	if err := q.err(); err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	occ, err := h.analyticsService.Expected(r.Context(), study, query)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, occ)
}

// StructureCount returns the study's per-module expectations
func (h *AnalyticsHandler) StructureCount(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r.URL.Query())
	studyID := q.getID("study_id")
	if err := q.err(); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, studyID)
	if !ok {
		return
	}
	sc, err := h.analyticsService.Structure(r.Context(), study)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

// Adherence returns per-participant adherence summaries
func (h *AnalyticsHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, id)
	if !ok {
		return
	}
	q := newQueryParams(r.URL.Query())
	summaries, err := h.analyticsService.Adherence(r.Context(), study, service.MappingQuery{
		ModuleID:   q.getString("module_id"),
		QuestionID: q.getString("question_id"),
		Mode:       q.getString("mode"),
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

// Sleep returns normalized per-night sleep rows
func (h *AnalyticsHandler) Sleep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, id)
	if !ok {
		return
	}
	q := newQueryParams(r.URL.Query())
	roles := analytics.SleepRoles{
		Bedtime:    q.getString("bedtime"),
		Risetime:   q.getString("risetime"),
		DiaryDate:  q.getString("diary_date"),
		Awakenings: q.getString("awakenings"),
		NapMinutes: q.getString("nap_minutes"),
	}
	rows, err := h.analyticsService.Sleep(r.Context(), study, roles, q.getString("user_id"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Variables returns transformed numeric variable series
func (h *AnalyticsHandler) Variables(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, id)
	if !ok {
		return
	}
	q := newQueryParams(r.URL.Query())
	var vars []string
	for _, v := range r.URL.Query()["var"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				vars = append(vars, part)
			}
		}
	}

	points, err := h.analyticsService.Variables(r.Context(), study, service.VariableQuery{
		Variables: vars,
		UserID:    q.getString("user_id"),
		Bin:       q.getString("bin"),
		ZScore:    q.getBool("zscore"),
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

// VariableCatalog lists the numeric variables a study offers
func (h *AnalyticsHandler) VariableCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	study, ok := authorizeStudy(w, r, h.studyService, h.log, id)
	if !ok {
		return
	}
	vars, err := h.analyticsService.Catalog(r.Context(), study)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, vars)
}
