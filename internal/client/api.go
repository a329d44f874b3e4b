package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"studydash/internal/analytics"
	"studydash/internal/models"
)

// LoginResult carries the issued bearer token
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// CreateUserRequest adds an account. An empty password makes the server
// generate a temporary one.
type CreateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email,omitempty"`
	Password string      `json:"password,omitempty"`
	Role     models.Role `json:"role,omitempty"`
	StudyIDs []int64     `json:"study_ids,omitempty"`
}

// CreateUserResult is the new account plus any generated password
type CreateUserResult struct {
	User              models.User `json:"user"`
	TemporaryPassword string      `json:"temporary_password,omitempty"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged
type UpdateUserRequest struct {
	Email    *string      `json:"email,omitempty"`
	Role     *models.Role `json:"role,omitempty"`
	Password *string      `json:"password,omitempty"`
}

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

func (q ResponseQuery) values() url.Values {
	v := url.Values{}
	setString(v, "user_id", q.UserID)
	setString(v, "module_id", q.ModuleID)
	setTime(v, "from", q.From)
	setTime(v, "to", q.To)
	setString(v, "sort", q.Sort)
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ResponsePage is one page of labeled responses
type ResponsePage struct {
	Total     int                      `json:"total"`
	Responses []models.LabeledResponse `json:"responses"`
}

// ExpectedQuery selects expected occurrence windows
type ExpectedQuery struct {
	StudyID  int64
	UserID   string
	From     time.Time
	To       time.Time
	Timezone string
}

// MappingQuery names the identifier question used to label participants
type MappingQuery struct {
	ModuleID   string
	QuestionID string
	Mode       string
}

func (q MappingQuery) values() url.Values {
	v := url.Values{}
	setString(v, "module_id", q.ModuleID)
	setString(v, "question_id", q.QuestionID)
	setString(v, "mode", q.Mode)
	return v
}

// VariableQuery selects variable series and their post-processing
type VariableQuery struct {
	Variables []string
	UserID    string
	Bin       string
	ZScore    bool
}

// IngestResponse is one submission to store
type IngestResponse struct {
	UserID       string         `json:"user_id"`
	ModuleID     string         `json:"module_id"`
	ResponseTime time.Time      `json:"response_time"`
	Responses    map[string]any `json:"responses"`
}

// Health is the server's readiness report
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Progress int    `json:"progress"`
}

func setString(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setTime(v url.Values, key string, t time.Time) {
	if !t.IsZero() {
		v.Set(key, t.Format(time.RFC3339))
	}
}

func studyPath(id int64, suffix string) string {
	return "/api/studies/" + strconv.FormatInt(id, 10) + suffix
}

// Health reports server readiness; a server still starting returns a 503 APIError
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every account (admin only)
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, http.MethodGet, "/api/auth/users", nil, nil, &users)
	return users, err
}

// CreateUser adds an account (admin only)
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*CreateUserResult, error) {
	var res CreateUserResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/users", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateUser applies a partial update (admin only)
func (c *Client) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodPatch, "/api/auth/users/"+strconv.FormatInt(id, 10), nil, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes an account (admin only)
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/auth/users/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// ChangePassword updates the caller's own password
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	return c.do(ctx, http.MethodPatch, "/api/auth/change-password", nil, body, nil)
}

// CheckUsername reports whether a username is free
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var res struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/check-username", url.Values{"username": {username}}, nil, &res)
	return res.Available, err
}

// ListStudies returns the studies visible to the caller
func (c *Client) ListStudies(ctx context.Context) ([]models.Study, error) {
	var studies []models.Study
	err := c.do(ctx, http.MethodGet, "/api/studies", nil, nil, &studies)
	return studies, err
}

// CreateStudy posts a study definition document (admin only)
func (c *Client) CreateStudy(ctx context.Context, definition json.RawMessage) (*models.Study, error) {
	var s models.Study
	if err := c.do(ctx, http.MethodPost, "/api/studies", nil, definition, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AddMembership grants userID access to studyID; 0 means the caller
func (c *Client) AddMembership(ctx context.Context, userID, studyID int64) error {
	return c.do(ctx, http.MethodPost, "/api/user/studies", nil, models.Membership{UserID: userID, StudyID: studyID}, nil)
}

// RemoveMembership revokes userID's access to studyID
func (c *Client) RemoveMembership(ctx context.Context, userID, studyID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/user/studies", nil, models.Membership{UserID: userID, StudyID: studyID}, nil)
}

// Questions returns a study's question catalog
func (c *Client) Questions(ctx context.Context, studyID int64) ([]models.Question, error) {
	var qs []models.Question
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/questions"), nil, nil, &qs)
	return qs, err
}

// Modules returns a study's module definitions
func (c *Client) Modules(ctx context.Context, studyID int64) ([]models.Module, error) {
	var ms []models.Module
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/modules"), nil, nil, &ms)
	return ms, err
}

// LabeledResponses returns a page of labeled responses
func (c *Client) LabeledResponses(ctx context.Context, studyID int64, q ResponseQuery) (*ResponsePage, error) {
	var page ResponsePage
	if err := c.do(ctx, http.MethodGet, studyPath(studyID, "/responses:labeled"), q.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Facets lists the participants and modules present in a study
func (c *Client) Facets(ctx context.Context, studyID int64) (*models.Facets, error) {
	var f models.Facets
	if err := c.do(ctx, http.MethodGet, studyPath(studyID, "/responses:facets"), nil, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UserMapping maps participant IDs to labels
func (c *Client) UserMapping(ctx context.Context, studyID int64, q MappingQuery) (map[string]string, error) {
	var m map[string]string
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/user-mapping"), q.values(), nil, &m)
	return m, err
}

// IngestResponses stores a batch of submissions (admin only)
func (c *Client) IngestResponses(ctx context.Context, studyID int64, batch []IngestResponse) (int, error) {
	var res struct {
		Stored int `json:"stored"`
	}
	err := c.do(ctx, http.MethodPost, studyPath(studyID, "/responses"), nil, batch, &res)
	return res.Stored, err
}

// Expected lists expected occurrence windows
func (c *Client) Expected(ctx context.Context, q ExpectedQuery) ([]models.ExpectedOccurrence, error) {
	v := url.Values{"study_id": {strconv.FormatInt(q.StudyID, 10)}}
	setString(v, "user_id", q.UserID)
	setTime(v, "from", q.From)
	setTime(v, "to", q.To)
	setString(v, "tz", q.Timezone)

	var occ []models.ExpectedOccurrence
	err := c.do(ctx, http.MethodGet, "/api/v2/adherence/expected", v, nil, &occ)
	return occ, err
}

// StructureCount returns a study's per-module expectations
func (c *Client) StructureCount(ctx context.Context, studyID int64) (*models.StructureCount, error) {
	var sc models.StructureCount
	v := url.Values{"study_id": {strconv.FormatInt(studyID, 10)}}
	if err := c.do(ctx, http.MethodGet, "/api/v2/adherence/structure-count", v, nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Adherence returns server-computed adherence summaries
func (c *Client) Adherence(ctx context.Context, studyID int64, q MappingQuery) ([]analytics.UserSummary, error) {
	var out []analytics.UserSummary
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/adherence"), q.values(), nil, &out)
	return out, err
}

// Sleep returns normalized sleep rows for the given role assignment
func (c *Client) Sleep(ctx context.Context, studyID int64, roles analytics.SleepRoles, userID string) ([]analytics.SleepRow, error) {
	v := url.Values{}
	setString(v, "bedtime", roles.Bedtime)
	setString(v, "risetime", roles.Risetime)
	setString(v, "diary_date", roles.DiaryDate)
	setString(v, "awakenings", roles.Awakenings)
	setString(v, "nap_minutes", roles.NapMinutes)
	setString(v, "user_id", userID)

	var rows []analytics.SleepRow
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/sleep"), v, nil, &rows)
	return rows, err
}

// Variables returns transformed variable series
func (c *Client) Variables(ctx context.Context, studyID int64, q VariableQuery) ([]analytics.VariablePoint, error) {
	v := url.Values{"var": q.Variables}
	setString(v, "user_id", q.UserID)
	setString(v, "bin", q.Bin)
	if q.ZScore {
		v.Set("zscore", "1")
	}
	var points []analytics.VariablePoint
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/variables"), v, nil, &points)
	return points, err
}

// VariableCatalog lists a study's numeric variables
func (c *Client) VariableCatalog(ctx context.Context, studyID int64) ([]analytics.Variable, error) {
	var vars []analytics.Variable
	err := c.do(ctx, http.MethodGet, studyPath(studyID, "/variables:catalog"), nil, nil, &vars)
	return vars, err
}
