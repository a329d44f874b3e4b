package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"studydash/internal/models"
	"studydash/internal/service"
)

// StudyHandler serves studies, their catalog, membership and responses
type StudyHandler struct {
	studyService    *service.StudyService
	responseService *service.ResponseService
	log             *zap.Logger
}

// NewStudyHandler creates a new study handler
func NewStudyHandler(studyService *service.StudyService, responseService *service.ResponseService, log *zap.Logger) *StudyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StudyHandler{studyService: studyService, responseService: responseService, log: log}
}

// authorizeStudy loads the study named by id for the authenticated user,
// writing the error response itself when access is denied
func authorizeStudy(w http.ResponseWriter, r *http.Request, studies *service.StudyService, log *zap.Logger, id int64) (*models.Study, bool) {
	study, err := studies.Authorize(r.Context(), GetUserFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, log, err)
		return nil, false
	}
	return study, true
}

func (h *StudyHandler) pathStudy(w http.ResponseWriter, r *http.Request) (*models.Study, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	return authorizeStudy(w, r, h.studyService, h.log, id)
}

// ListStudies returns the studies visible to the caller
func (h *StudyHandler) ListStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := h.studyService.ListStudies(r.Context(), GetUserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, studies)
}

// CreateStudy defines a new study with its modules and questions
func (h *StudyHandler) CreateStudy(w http.ResponseWriter, r *http.Request) {
	var in service.CreateStudyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	study, err := h.studyService.CreateStudy(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.log.Info("study created", zap.Int64("study_id", study.ID), zap.String("name", study.Name))
	respondJSON(w, http.StatusCreated, study)
}

// AddMembership grants a user access to a study
func (h *StudyHandler) AddMembership(w http.ResponseWriter, r *http.Request) {
	var in service.MembershipInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.studyService.AddMember(r.Context(), GetUserFromContext(r.Context()), in); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMembership revokes a user's access to a study
func (h *StudyHandler) RemoveMembership(w http.ResponseWriter, r *http.Request) {
	var in service.MembershipInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.studyService.RemoveMember(r.Context(), GetUserFromContext(r.Context()), in); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Questions returns the study's question catalog
func (h *StudyHandler) Questions(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}
	questions, err := h.studyService.Questions(r.Context(), study.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, questions)
}

// Modules returns the study's module definitions
func (h *StudyHandler) Modules(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}
	modules, err := h.studyService.Modules(r.Context(), study.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, modules)
}

// LabeledResponses returns a filtered page of labeled responses
func (h *StudyHandler) LabeledResponses(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}

	q := newQueryParams(r.URL.Query())
	loc := study.Location()
	query := service.ResponseQuery{
		UserID:   q.getString("user_id"),
		ModuleID: q.getString("module_id"),
		From:     q.getTime("from", loc, false),
		To:       q.getTime("to", loc, true),
		Sort:     q.getString("sort"),
		Skip:     q.getInt("skip", 0),
		Limit:    q.getInt("limit", 0),
	}
	if err := q.err(); err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	page, err := h.responseService.Labeled(r.Context(), study.ID, query)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Facets lists the participants and modules present in a study's responses
func (h *StudyHandler) Facets(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}
	facets, err := h.responseService.Facets(r.Context(), study.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, facets)
}

// UserMapping maps participant IDs to display labels
func (h *StudyHandler) UserMapping(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}
	q := newQueryParams(r.URL.Query())
	mapping, err := h.responseService.UserMapping(r.Context(), study.ID,
		q.getString("module_id"), q.getString("question_id"), q.getString("mode"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, mapping)
}

// IngestResponses stores a batch of submissions
func (h *StudyHandler) IngestResponses(w http.ResponseWriter, r *http.Request) {
	study, ok := h.pathStudy(w, r)
	if !ok {
		return
	}
	var in []service.IngestResponse
	if !decodeJSON(w, r, &in) {
		return
	}
	n, err := h.responseService.Ingest(r.Context(), study.ID, in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.log.Info("responses ingested", zap.Int64("study_id", study.ID), zap.Int("count", n))
	respondJSON(w, http.StatusCreated, map[string]int{"stored": n})
}
