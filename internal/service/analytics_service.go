package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"studydash/internal/analytics"
	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/repository"
	"studydash/internal/schedule"
	"studydash/internal/validation"
)

// ExpectedQuery selects the expected windows for one participant or range.
// A missing From is taken from UserID's first response; a missing To spans
// the study length from there.
type ExpectedQuery struct {
	UserID   string
	From     time.Time
	To       time.Time
	Timezone string
}

// MappingQuery optionally labels participants in derived results
type MappingQuery struct {
	ModuleID   string
	QuestionID string
	Mode       string
}

// VariableQuery selects variable series and their post-processing
type VariableQuery struct {
	Variables []string
	UserID    string
	Bin       string
	ZScore    bool
}

// AnalyticsService computes schedules and the derived adherence, sleep and
// variable views on the server
type AnalyticsService struct {
	responses *repository.ResponseRepository
	studies   *repository.StudyRepository
	mapping   *ResponseService
	log       *zap.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *database.DB, log *zap.Logger) *AnalyticsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsService{
		responses: repository.NewResponseRepository(db),
		studies:   repository.NewStudyRepository(db),
		mapping:   NewResponseService(db),
		log:       log,
	}
}

func location(study *models.Study, tz string) (*time.Location, error) {
	if tz == "" {
		return study.Location(), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, validation.Errors{"tz": "unknown timezone"}
	}
	return loc, nil
}

// Expected lists the expected occurrence windows for a study
func (s *AnalyticsService) Expected(ctx context.Context, study *models.Study, q ExpectedQuery) ([]models.ExpectedOccurrence, error) {
	loc, err := location(study, q.Timezone)
	if err != nil {
		return nil, err
	}

	from, to := q.From, q.To
	if from.IsZero() {
		if q.UserID == "" {
			return nil, validation.Errors{"from": "is required without user_id"}
		}
		rows, err := s.responses.ListResponses(ctx, repository.ResponseFilter{StudyID: study.ID, UserID: q.UserID, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return []models.ExpectedOccurrence{}, nil
		}
		from = rows[0].ResponseTime
	}
	if to.IsZero() {
		_, to = analytics.WindowRange(from, study.Days())
	}
	if to.Before(from) {
		return nil, validation.Errors{"to": "must not be before from"}
	}

	modules, err := s.studies.ListModules(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	occ, err := schedule.Occurrences(modules, loc, from, to)
	if err != nil {
		return nil, fmt.Errorf("study %d has an invalid schedule: %w", study.ID, err)
	}
	return occ, nil
}

// Structure returns the study's structural counts
func (s *AnalyticsService) Structure(ctx context.Context, study *models.Study) (*models.StructureCount, error) {
	modules, err := s.studies.ListModules(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	sc := schedule.Structure(study, modules)
	return &sc, nil
}

// Adherence computes every participant's adherence summary
func (s *AnalyticsService) Adherence(ctx context.Context, study *models.Study, mq MappingQuery) ([]analytics.UserSummary, error) {
	rows, err := s.responses.ListResponses(ctx, repository.ResponseFilter{StudyID: study.ID})
	if err != nil {
		return nil, err
	}
	modules, err := s.studies.ListModules(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	labels, err := s.labels(ctx, study.ID, mq)
	if err != nil {
		return nil, err
	}

	loc := study.Location()
	windows := make(map[string][]models.ExpectedOccurrence)
	for user, baseline := range analytics.Baselines(rows) {
		from, to := analytics.WindowRange(baseline, study.Days())
		occ, err := schedule.Occurrences(modules, loc, from, to)
		if err != nil {
			s.log.Warn("expected windows unavailable", zap.Int64("study_id", study.ID), zap.String("user_id", user), zap.Error(err))
			continue
		}
		windows[user] = occ
	}

	return analytics.SummarizeAdherence(analytics.AdherenceInput{
		Responses: rows,
		Structure: schedule.Structure(study, modules),
		Windows:   windows,
		Labels:    labels,
	}), nil
}

// Sleep folds the study's responses into per-night sleep rows
func (s *AnalyticsService) Sleep(ctx context.Context, study *models.Study, roles analytics.SleepRoles, userID string) ([]analytics.SleepRow, error) {
	if !roles.Queryable() {
		return nil, analytics.ErrSleepRolesUnset
	}
	rows, err := s.responses.ListResponses(ctx, repository.ResponseFilter{StudyID: study.ID, UserID: userID})
	if err != nil {
		return nil, err
	}
	return analytics.NormalizeSleep(rows, roles, study.Location())
}

// Variables extracts and transforms numeric variable series
func (s *AnalyticsService) Variables(ctx context.Context, study *models.Study, q VariableQuery) ([]analytics.VariablePoint, error) {
	errs := validation.Errors{}
	if len(q.Variables) == 0 {
		errs["var"] = "at least one variable is required"
	}
	bin, err := analytics.ParseBin(q.Bin)
	if err != nil {
		errs["bin"] = "must be hour or day"
	}
	if len(errs) > 0 {
		return nil, errs
	}

	questions, err := s.studies.ListQuestions(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	vars, err := analytics.ResolveVariables(q.Variables, analytics.VariablesFromCatalog(questions))
	if err != nil {
		return nil, validation.Errors{"var": err.Error()}
	}
	rows, err := s.responses.ListResponses(ctx, repository.ResponseFilter{StudyID: study.ID, UserID: q.UserID})
	if err != nil {
		return nil, err
	}

	points := analytics.ExtractVariables(rows, vars)
	return analytics.Transform(points, analytics.TransformOptions{
		Bin:      bin,
		ZScore:   q.ZScore,
		Location: study.Location(),
	}), nil
}

// Catalog lists the selectable numeric variables of a study
func (s *AnalyticsService) Catalog(ctx context.Context, study *models.Study) ([]analytics.Variable, error) {
	questions, err := s.studies.ListQuestions(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	return analytics.VariablesFromCatalog(questions), nil
}

func (s *AnalyticsService) labels(ctx context.Context, studyID int64, mq MappingQuery) (map[string]string, error) {
	if mq.QuestionID == "" {
		return nil, nil
	}
	return s.mapping.UserMapping(ctx, studyID, mq.ModuleID, mq.QuestionID, mq.Mode)
}
