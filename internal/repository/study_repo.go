package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studydash/internal/database"
	"studydash/internal/models"
)

const studyColumns = "id, name, description, study_days, timezone, created_at"

// StudyRepository handles studies, memberships and the module/question catalog
type StudyRepository struct {
	db database.DBTX
}

// NewStudyRepository creates a new study repository
func NewStudyRepository(db database.DBTX) *StudyRepository {
	return &StudyRepository{db: db}
}

// CreateStudy inserts a study and fills in its ID. A non-zero ID is kept as is.
func (r *StudyRepository) CreateStudy(ctx context.Context, s *models.Study) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if s.StudyDays <= 0 {
		s.StudyDays = models.DefaultStudyDays
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}

	if s.ID != 0 {
		query := "INSERT INTO studies (" + studyColumns + ") VALUES (?, ?, ?, ?, ?, ?)"
		if _, err := r.db.ExecContext(ctx, query, s.ID, s.Name, s.Description, s.StudyDays, s.Timezone, s.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert study %d: %w", s.ID, err)
		}
		return nil
	}

	query := "INSERT INTO studies (name, description, study_days, timezone, created_at) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, s.Name, s.Description, s.StudyDays, s.Timezone, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create study: %w", err)
	}
	s.ID = id
	return nil
}

// GetStudy retrieves a study by ID, or nil when absent
func (r *StudyRepository) GetStudy(ctx context.Context, id int64) (*models.Study, error) {
	s := &models.Study{}
	err := r.db.QueryRowContext(ctx, "SELECT "+studyColumns+" FROM studies WHERE id = ?", id).
		Scan(&s.ID, &s.Name, &s.Description, &s.StudyDays, &s.Timezone, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return s, nil
}

// ListStudies returns every study ordered by name
func (r *StudyRepository) ListStudies(ctx context.Context) ([]models.Study, error) {
	return r.queryStudies(ctx, "SELECT "+studyColumns+" FROM studies ORDER BY name, id")
}

// ListStudiesForUser returns the studies a user is a member of
func (r *StudyRepository) ListStudiesForUser(ctx context.Context, userID int64) ([]models.Study, error) {
	query := `
		SELECT s.id, s.name, s.description, s.study_days, s.timezone, s.created_at
		FROM studies s
		INNER JOIN user_studies us ON us.study_id = s.id
		WHERE us.user_id = ?
		ORDER BY s.name, s.id
	`
	return r.queryStudies(ctx, query, userID)
}

func (r *StudyRepository) queryStudies(ctx context.Context, query string, args ...any) ([]models.Study, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer rows.Close()

	studies := []models.Study{}
	for rows.Next() {
		var s models.Study
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.StudyDays, &s.Timezone, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, s)
	}
	return studies, rows.Err()
}

// AddMember links a user to a study. Adding an existing membership is a no-op.
func (r *StudyRepository) AddMember(ctx context.Context, userID, studyID int64) error {
	query := r.db.GetDialect().InsertIgnoreQuery("user_studies", "user_id", "study_id")
	if _, err := r.db.ExecContext(ctx, query, userID, studyID); err != nil {
		return fmt.Errorf("failed to add study member: %w", err)
	}
	return nil
}

// RemoveMember unlinks a user from a study
func (r *StudyRepository) RemoveMember(ctx context.Context, userID, studyID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM user_studies WHERE user_id = ? AND study_id = ?", userID, studyID)
	if err != nil {
		return fmt.Errorf("failed to remove study member: %w", err)
	}
	return requireRow(res)
}

// IsMember reports whether a user belongs to a study
func (r *StudyRepository) IsMember(ctx context.Context, userID, studyID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_studies WHERE user_id = ? AND study_id = ?", userID, studyID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

// ListMemberships returns every membership row
func (r *StudyRepository) ListMemberships(ctx context.Context) ([]models.Membership, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id, study_id FROM user_studies ORDER BY user_id, study_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	out := []models.Membership{}
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.UserID, &m.StudyID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateModule inserts a module definition
func (r *StudyRepository) CreateModule(ctx context.Context, m *models.Module) error {
	if m.Repeat == "" {
		m.Repeat = models.RepeatNever
	}
	query := `
		INSERT INTO modules (study_id, id, name, repeat_policy, window_start, window_end, expected_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, m.StudyID, m.ID, m.Name, string(m.Repeat), m.WindowStart, m.WindowEnd, m.ExpectedTotal)
	if err != nil {
		return fmt.Errorf("failed to create module %s: %w", m.ID, err)
	}
	return nil
}

// ListModules returns a study's modules ordered by ID
func (r *StudyRepository) ListModules(ctx context.Context, studyID int64) ([]models.Module, error) {
	query := `
		SELECT study_id, id, name, repeat_policy, window_start, window_end, expected_total
		FROM modules
		WHERE study_id = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	modules := []models.Module{}
	for rows.Next() {
		var m models.Module
		var repeat string
		if err := rows.Scan(&m.StudyID, &m.ID, &m.Name, &repeat, &m.WindowStart, &m.WindowEnd, &m.ExpectedTotal); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		m.Repeat = models.Repeat(repeat)
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// CreateQuestion inserts a catalog question
func (r *StudyRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	options := "{}"
	if len(q.NumericOptions) > 0 {
		b, err := json.Marshal(q.NumericOptions)
		if err != nil {
			return fmt.Errorf("failed to encode numeric options: %w", err)
		}
		options = string(b)
	}
	query := `
		INSERT INTO questions (study_id, id, module_id, question_text, section, question_type, subtype, numeric_options, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, q.StudyID, q.ID, q.ModuleID, q.Text, q.Section, q.Type, q.Subtype, options, q.Position)
	if err != nil {
		return fmt.Errorf("failed to create question %s: %w", q.ID, err)
	}
	return nil
}

// ListQuestions returns a study's question catalog in module and position order
func (r *StudyRepository) ListQuestions(ctx context.Context, studyID int64) ([]models.Question, error) {
	query := `
		SELECT study_id, id, module_id, question_text, section, question_type, subtype, numeric_options, position
		FROM questions
		WHERE study_id = ?
		ORDER BY module_id, position, id
	`
	rows, err := r.db.QueryContext(ctx, query, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		var q models.Question
		var options string
		if err := rows.Scan(&q.StudyID, &q.ID, &q.ModuleID, &q.Text, &q.Section, &q.Type, &q.Subtype, &options, &q.Position); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if options != "" && options != "{}" {
			if err := json.Unmarshal([]byte(options), &q.NumericOptions); err != nil {
				return nil, fmt.Errorf("question %s has malformed numeric options: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
