package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/repository"
	"studydash/internal/schedule"
	"studydash/internal/validation"
)

var (
	ErrStudyNotFound      = errors.New("study not found")
	ErrMembershipNotFound = errors.New("membership not found")
)

// MembershipInput adds or removes a user's access to a study. UserID
// defaults to the caller.
type MembershipInput struct {
	UserID  int64 `json:"user_id"`
	StudyID int64 `json:"study_id" validate:"required,gt=0"`
}

// ModuleInput defines a module when creating a study
type ModuleInput struct {
	ID            string        `json:"id" validate:"required,max=64"`
	Name          string        `json:"name" validate:"required"`
	Repeat        models.Repeat `json:"repeat" validate:"omitempty,oneof=never daily weekly"`
	WindowStart   string        `json:"window_start"`
	WindowEnd     string        `json:"window_end"`
	ExpectedTotal int           `json:"expected_total" validate:"gte=0"`
}

// QuestionInput defines a catalog question when creating a study
type QuestionInput struct {
	ID             string             `json:"id" validate:"required,max=64"`
	ModuleID       string             `json:"module_id" validate:"required"`
	Text           string             `json:"text"`
	Section        string             `json:"section"`
	Type           string             `json:"type"`
	Subtype        string             `json:"subtype"`
	NumericOptions map[string]float64 `json:"numeric_options"`
	Position       int                `json:"position"`
}

// CreateStudyInput is the admin request to define a study and its catalog
type CreateStudyInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description"`
	StudyDays   int             `json:"study_days" validate:"gte=0,lte=3650"`
	Timezone    string          `json:"timezone"`
	Modules     []ModuleInput   `json:"modules" validate:"dive"`
	Questions   []QuestionInput `json:"questions" validate:"dive"`
}

// StudyService handles studies, their catalog and membership
type StudyService struct {
	db      *database.DB
	studies *repository.StudyRepository
	users   *repository.UserRepository
}

// NewStudyService creates a new study service
func NewStudyService(db *database.DB) *StudyService {
	return &StudyService{
		db:      db,
		studies: repository.NewStudyRepository(db),
		users:   repository.NewUserRepository(db),
	}
}

// ListStudies returns every study to admins and the member studies to others
func (s *StudyService) ListStudies(ctx context.Context, user *models.User) ([]models.Study, error) {
	if user.IsAdmin() {
		return s.studies.ListStudies(ctx)
	}
	return s.studies.ListStudiesForUser(ctx, user.ID)
}

// Authorize loads a study the user may read
func (s *StudyService) Authorize(ctx context.Context, user *models.User, studyID int64) (*models.Study, error) {
	study, err := s.studies.GetStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, ErrStudyNotFound
	}
	if user.IsAdmin() {
		return study, nil
	}
	ok, err := s.studies.IsMember(ctx, user.ID, studyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return study, nil
}

// AddMember grants a user access to a study. Only admins may change
// memberships.
func (s *StudyService) AddMember(ctx context.Context, actor *models.User, in MembershipInput) error {
	userID, err := s.checkMembership(ctx, actor, in)
	if err != nil {
		return err
	}
	return s.studies.AddMember(ctx, userID, in.StudyID)
}

// RemoveMember revokes a user's access to a study
func (s *StudyService) RemoveMember(ctx context.Context, actor *models.User, in MembershipInput) error {
	userID, err := s.checkMembership(ctx, actor, in)
	if err != nil {
		return err
	}
	if err := s.studies.RemoveMember(ctx, userID, in.StudyID); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrMembershipNotFound
		}
		return err
	}
	return nil
}

func (s *StudyService) checkMembership(ctx context.Context, actor *models.User, in MembershipInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}
	userID := in.UserID
	if userID == 0 {
		userID = actor.ID
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrUserNotFound
	}
	study, err := s.studies.GetStudy(ctx, in.StudyID)
	if err != nil {
		return 0, err
	}
	if study == nil {
		return 0, ErrStudyNotFound
	}
	return userID, nil
}

// CreateStudy stores a study with its modules and questions in one transaction
func (s *StudyService) CreateStudy(ctx context.Context, in CreateStudyInput) (*models.Study, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := checkStudyInput(in); err != nil {
		return nil, err
	}

	study := &models.Study{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		StudyDays:   in.StudyDays,
		Timezone:    in.Timezone,
	}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := repository.NewStudyRepository(tx)
		if err := repo.CreateStudy(ctx, study); err != nil {
			return err
		}
		for _, m := range in.Modules {
			mod := models.Module{
				ID: m.ID, StudyID: study.ID, Name: m.Name, Repeat: m.Repeat,
				WindowStart: m.WindowStart, WindowEnd: m.WindowEnd, ExpectedTotal: m.ExpectedTotal,
			}
			if err := repo.CreateModule(ctx, &mod); err != nil {
				return err
			}
		}
		for _, q := range in.Questions {
			question := models.Question{
				ID: q.ID, StudyID: study.ID, ModuleID: q.ModuleID, Text: q.Text, Section: q.Section,
				Type: q.Type, Subtype: q.Subtype, NumericOptions: q.NumericOptions, Position: q.Position,
			}
			if question.Type == "" {
				question.Type = "text"
			}
			if err := repo.CreateQuestion(ctx, &question); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create study: %w", err)
	}
	return study, nil
}

func checkStudyInput(in CreateStudyInput) error {
	errs := validation.Errors{}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			errs["timezone"] = "unknown timezone"
		}
	}
	modules := make(map[string]bool, len(in.Modules))
	for i, m := range in.Modules {
		if modules[m.ID] {
			errs[fmt.Sprintf("modules[%d].id", i)] = "is duplicated"
		}
		modules[m.ID] = true
		if m.WindowStart == "" && m.WindowEnd == "" {
			continue
		}
		if _, err := schedule.ParseClock(m.WindowStart); err != nil {
			errs[fmt.Sprintf("modules[%d].window_start", i)] = "must be HH:MM"
		}
		if _, err := schedule.ParseClock(m.WindowEnd); err != nil {
			errs[fmt.Sprintf("modules[%d].window_end", i)] = "must be HH:MM"
		}
	}
	questions := make(map[string]bool, len(in.Questions))
	for i, q := range in.Questions {
		if questions[q.ID] {
			errs[fmt.Sprintf("questions[%d].id", i)] = "is duplicated"
		}
		questions[q.ID] = true
		if !modules[q.ModuleID] {
			errs[fmt.Sprintf("questions[%d].module_id", i)] = "unknown module"
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Modules returns a study's module definitions
func (s *StudyService) Modules(ctx context.Context, studyID int64) ([]models.Module, error) {
	return s.studies.ListModules(ctx, studyID)
}

// Questions returns a study's question catalog
func (s *StudyService) Questions(ctx context.Context, studyID int64) ([]models.Question, error) {
	return s.studies.ListQuestions(ctx, studyID)
}
