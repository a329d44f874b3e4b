package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"studydash/internal/database"
	"studydash/internal/models"
)

// Sort orders accepted by ListResponses
const (
	SortTimeAsc  = "response_time"
	SortTimeDesc = "-response_time"
	SortUser     = "user_id"
)

var sortClauses = map[string]string{
	"":           "response_time ASC, id ASC",
	SortTimeAsc:  "response_time ASC, id ASC",
	SortTimeDesc: "response_time DESC, id DESC",
	SortUser:     "user_id ASC, response_time ASC, id ASC",
}

// ValidSort reports whether s is an accepted sort order
func ValidSort(s string) bool {
	_, ok := sortClauses[s]
	return ok
}

// ResponseFilter narrows a study's responses. Zero values mean "no filter".
type ResponseFilter struct {
	StudyID  int64
	UserID   string
	ModuleID string
	From     time.Time
	To       time.Time
	Sort     string
	Skip     int
	Limit    int
}

func (f ResponseFilter) where() (string, []any) {
	clauses := []string{"study_id = ?"}
	args := []any{f.StudyID}
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ModuleID != "" {
		clauses = append(clauses, "module_id = ?")
		args = append(args, f.ModuleID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "response_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "response_time <= ?")
		args = append(args, f.To.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

// ResponseRepository reads and stores survey submissions
type ResponseRepository struct {
	db database.DBTX
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db database.DBTX) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// InsertResponse stores a submission. A zero ID is assigned by the database.
func (r *ResponseRepository) InsertResponse(ctx context.Context, resp *models.SurveyResponse) error {
	answers, err := json.Marshal(resp.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	if resp.Responses == nil {
		answers = []byte("{}")
	}
	at := resp.ResponseTime.UTC().Truncate(time.Second)

	if resp.ID != 0 {
		query := `
			INSERT INTO responses (id, study_id, user_id, module_id, response_time, answers)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		if _, err := r.db.ExecContext(ctx, query, resp.ID, resp.StudyID, resp.UserID, resp.ModuleID, at, string(answers)); err != nil {
			return fmt.Errorf("failed to insert response %d: %w", resp.ID, err)
		}
		return nil
	}

	query := `
		INSERT INTO responses (study_id, user_id, module_id, response_time, answers)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, resp.StudyID, resp.UserID, resp.ModuleID, at, string(answers))
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	resp.ID = id
	return nil
}

// ListResponses returns the responses matching f
func (r *ResponseRepository) ListResponses(ctx context.Context, f ResponseFilter) ([]models.SurveyResponse, error) {
	order, ok := sortClauses[f.Sort]
	if !ok {
		return nil, fmt.Errorf("unsupported sort %q", f.Sort)
	}
	where, args := f.where()
	query := "SELECT id, study_id, user_id, module_id, response_time, answers FROM responses WHERE " + where + " ORDER BY " + order

	if f.Limit > 0 || f.Skip > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(f.Skip, 0))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	out := []models.SurveyResponse{}
	for rows.Next() {
		var resp models.SurveyResponse
		var answers string
		if err := rows.Scan(&resp.ID, &resp.StudyID, &resp.UserID, &resp.ModuleID, &resp.ResponseTime, &answers); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &resp.Responses); err != nil {
			return nil, fmt.Errorf("response %d has malformed answers: %w", resp.ID, err)
		}
		if resp.Responses == nil {
			resp.Responses = map[string]any{}
		}
		resp.ResponseTime = resp.ResponseTime.UTC()
		out = append(out, resp)
	}
	return out, rows.Err()
}

// CountResponses returns how many responses match f, ignoring paging
func (r *ResponseRepository) CountResponses(ctx context.Context, f ResponseFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM responses WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}

// DistinctUsers lists participant IDs with at least one response in the study
func (r *ResponseRepository) DistinctUsers(ctx context.Context, studyID int64) ([]string, error) {
	return r.distinct(ctx, "user_id", studyID)
}

// DistinctModules lists module IDs with at least one response in the study
func (r *ResponseRepository) DistinctModules(ctx context.Context, studyID int64) ([]string, error) {
	return r.distinct(ctx, "module_id", studyID)
}

func (r *ResponseRepository) distinct(ctx context.Context, column string, studyID int64) ([]string, error) {
	query := "SELECT DISTINCT " + column + " FROM responses WHERE study_id = ? ORDER BY " + column
	rows, err := r.db.QueryContext(ctx, query, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
