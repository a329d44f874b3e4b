package service

import (
	"context"
	"fmt"
	"time"

	"studydash/internal/analytics"
	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/repository"
	"studydash/internal/validation"
)

const (
	// DefaultPageSize applies when a labeled response query omits the limit
	DefaultPageSize = 100
	// MaxPageSize caps the limit of a labeled response query
	MaxPageSize = 5000
)

// ResponseQuery filters a labeled response listing
type ResponseQuery struct {
	UserID   string
	ModuleID string
	From     time.Time
	To       time.Time
	Sort     string
	Skip     int
	Limit    int
}

// ResponsePage is one page of labeled responses
type ResponsePage struct {
	Total     int                      `json:"total"`
	Responses []models.LabeledResponse `json:"responses"`
}

// IngestResponse is one submission posted for storage
type IngestResponse struct {
	UserID       string         `json:"user_id" validate:"required,max=128"`
	ModuleID     string         `json:"module_id" validate:"required,max=64"`
	ResponseTime time.Time      `json:"response_time" validate:"required"`
	Responses    map[string]any `json:"responses"`
}

// ResponseService reads a study's submissions and their catalog labels
type ResponseService struct {
	db        *database.DB
	responses *repository.ResponseRepository
	studies   *repository.StudyRepository
}

// NewResponseService creates a new response service
func NewResponseService(db *database.DB) *ResponseService {
	return &ResponseService{
		db:        db,
		responses: repository.NewResponseRepository(db),
		studies:   repository.NewStudyRepository(db),
	}
}

func (q ResponseQuery) filter(studyID int64) (repository.ResponseFilter, error) {
	errs := validation.Errors{}
	if !repository.ValidSort(q.Sort) {
		errs["sort"] = "must be response_time, -response_time or user_id"
	}
	if q.Skip < 0 {
		errs["skip"] = "must be at least 0"
	}
	if q.Limit < 0 || q.Limit > MaxPageSize {
		errs["limit"] = fmt.Sprintf("must be between 0 and %d", MaxPageSize)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		errs["to"] = "must not be before from"
	}
	if len(errs) > 0 {
		return repository.ResponseFilter{}, errs
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	return repository.ResponseFilter{
		StudyID:  studyID,
		UserID:   q.UserID,
		ModuleID: q.ModuleID,
		From:     q.From,
		To:       q.To,
		Sort:     q.Sort,
		Skip:     q.Skip,
		Limit:    limit,
	}, nil
}

// Labeled returns a page of responses with module names and question labels
func (s *ResponseService) Labeled(ctx context.Context, studyID int64, q ResponseQuery) (*ResponsePage, error) {
	f, err := q.filter(studyID)
	if err != nil {
		return nil, err
	}
	rows, err := s.responses.ListResponses(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.responses.CountResponses(ctx, f)
	if err != nil {
		return nil, err
	}

	names, catalog, err := s.catalog(ctx, studyID)
	if err != nil {
		return nil, err
	}
	page := &ResponsePage{Total: total, Responses: make([]models.LabeledResponse, 0, len(rows))}
	for _, r := range rows {
		page.Responses = append(page.Responses, analytics.LabelResponse(r, names[r.ModuleID], catalog))
	}
	return page, nil
}

func (s *ResponseService) catalog(ctx context.Context, studyID int64) (map[string]string, map[string]models.Question, error) {
	modules, err := s.studies.ListModules(ctx, studyID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := s.studies.ListQuestions(ctx, studyID)
	if err != nil {
		return nil, nil, err
	}
	names := make(map[string]string, len(modules))
	for _, m := range modules {
		names[m.ID] = m.Name
	}
	catalog := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		catalog[q.ID] = q
	}
	return names, catalog, nil
}

// Facets lists the participants and modules that have responses
func (s *ResponseService) Facets(ctx context.Context, studyID int64) (*models.Facets, error) {
	users, err := s.responses.DistinctUsers(ctx, studyID)
	if err != nil {
		return nil, err
	}
	moduleIDs, err := s.responses.DistinctModules(ctx, studyID)
	if err != nil {
		return nil, err
	}
	names, _, err := s.catalog(ctx, studyID)
	if err != nil {
		return nil, err
	}

	facets := &models.Facets{Users: users, Modules: make([]models.FacetModule, 0, len(moduleIDs))}
	for _, id := range moduleIDs {
		name := names[id]
		if name == "" {
			name = id
		}
		facets.Modules = append(facets.Modules, models.FacetModule{ID: id, Name: name})
	}
	return facets, nil
}

// UserMapping labels participants by their answer to an identifier question
func (s *ResponseService) UserMapping(ctx context.Context, studyID int64, moduleID, questionID, mode string) (map[string]string, error) {
	errs := validation.Errors{}
	if questionID == "" {
		errs["question_id"] = "is required"
	}
	m, err := analytics.ParseMappingMode(mode)
	if err != nil {
		errs["mode"] = "must be first or latest"
	}
	if len(errs) > 0 {
		return nil, errs
	}

	rows, err := s.responses.ListResponses(ctx, repository.ResponseFilter{StudyID: studyID, ModuleID: moduleID})
	if err != nil {
		return nil, err
	}
	return analytics.UserMapping(rows, moduleID, questionID, m), nil
}

// Ingest stores submissions atomically and returns how many were saved
func (s *ResponseService) Ingest(ctx context.Context, studyID int64, in []IngestResponse) (int, error) {
	errs := validation.Errors{}
	for i, r := range in {
		fields, _ := validation.Fields(validation.Struct(r))
		for k, v := range fields {
			errs[fmt.Sprintf("[%d].%s", i, k)] = v
		}
	}
	if len(errs) > 0 {
		return 0, errs
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewResponseRepository(tx)
		for _, r := range in {
			resp := models.SurveyResponse{
				StudyID:      studyID,
				UserID:       r.UserID,
				ModuleID:     r.ModuleID,
				ResponseTime: r.ResponseTime,
				Responses:    r.Responses,
			}
			if err := repo.InsertResponse(ctx, &resp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store responses: %w", err)
	}
	return len(in), nil
}
