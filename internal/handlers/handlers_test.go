package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/security"
	"studydash/internal/service"
)

type testServer struct {
	*httptest.Server
	startup *StartupStatus
	auth    *service.AuthService
}

func newTestServer(t *testing.T, loginRate int) *testServer {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	issuer := security.NewTokenIssuer("handler-test-secret", time.Hour)
	authService := service.NewAuthService(db, issuer, nil, nil)
	studyService := service.NewStudyService(db)
	limiter := security.NewRateLimiter(loginRate, time.Minute)
	t.Cleanup(limiter.Stop)

	startup := NewStartupStatus()
	rt := &Router{
		Middleware: NewMiddleware(authService, limiter, nil),
		Auth:       NewAuthHandler(authService, nil),
		Studies:    NewStudyHandler(studyService, service.NewResponseService(db), nil),
		Analytics:  NewAnalyticsHandler(studyService, service.NewAnalyticsService(db, nil), nil),
		Startup:    startup,
		DB:         db,
	}
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, startup: startup, auth: authService}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var res service.LoginResult
	decode(t, resp, &res)
	return res.Token
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, 10)

	resp := srv.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before ready: status = %d, want 503", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	srv.startup.CompleteStep(StepDatabase)
	srv.startup.MarkReady()
	resp = srv.do(t, http.MethodGet, "/health", "", nil)
	var body HealthBody
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body.Status != "ok" || body.Progress != 100 {
		t.Errorf("after ready: status = %d, body = %+v", resp.StatusCode, body)
	}
}

func TestAuthEndpoints(t *testing.T) {
	srv := newTestServer(t, 100)
	ctx := context.Background()
	if _, err := srv.auth.EnsureAdmin(ctx, "admin", "adminpassword"); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	admin := srv.login(t, "admin", "adminpassword")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"me without token", http.MethodGet, "/api/auth/me", "", nil, http.StatusUnauthorized},
		{"me with bad token", http.MethodGet, "/api/auth/me", "nope", nil, http.StatusUnauthorized},
		{"me", http.MethodGet, "/api/auth/me", admin, nil, http.StatusOK},
		{"bad login", http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "x"}, http.StatusUnauthorized},
		{"unknown field", http.MethodPost, "/api/auth/login", "", map[string]string{"user": "admin"}, http.StatusBadRequest},
		{"create user", http.MethodPost, "/api/auth/users", admin, map[string]any{"username": "res1", "password": "password123"}, http.StatusCreated},
		{"duplicate user", http.MethodPost, "/api/auth/users", admin, map[string]any{"username": "res1"}, http.StatusConflict},
		{"invalid user", http.MethodPost, "/api/auth/users", admin, map[string]any{"username": "x"}, http.StatusBadRequest},
		{"list users", http.MethodGet, "/api/auth/users", admin, nil, http.StatusOK},
		{"check username", http.MethodGet, "/api/auth/check-username?username=res1", admin, nil, http.StatusOK},
		{"delete self", http.MethodDelete, "/api/auth/users/1", admin, nil, http.StatusConflict},
		{"delete missing", http.MethodDelete, "/api/auth/users/999", admin, nil, http.StatusNotFound},
		{"bad id", http.MethodPatch, "/api/auth/users/abc", admin, map[string]any{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, tt.method, tt.path, tt.token, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
			}
		})
	}

	researcher := srv.login(t, "res1", "password123")
	if resp := srv.do(t, http.MethodGet, "/api/auth/users", researcher, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("researcher list users: status = %d, want 403", resp.StatusCode)
	}
	resp := srv.do(t, http.MethodPatch, "/api/auth/change-password", researcher,
		map[string]string{"current_password": "password123", "new_password": "password456"})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("change password: status = %d, want 204", resp.StatusCode)
	}
	srv.login(t, "res1", "password456")
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t, 2)
	creds := map[string]string{"username": "ghost", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		if resp := srv.do(t, http.MethodPost, "/api/auth/login", "", creds); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, resp.StatusCode)
		}
	}
	if resp := srv.do(t, http.MethodPost, "/api/auth/login", "", creds); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third attempt: status = %d, want 429", resp.StatusCode)
	}
}

func TestStudyEndpoints(t *testing.T) {
	srv := newTestServer(t, 100)
	ctx := context.Background()
	if _, err := srv.auth.EnsureAdmin(ctx, "admin", "adminpassword"); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	admin := srv.login(t, "admin", "adminpassword")

	resp := srv.do(t, http.MethodPost, "/api/studies", admin, service.CreateStudyInput{
		Name:      "Mood study",
		StudyDays: 8,
		Modules: []service.ModuleInput{
			{ID: "consent", Name: "Consent", Repeat: models.RepeatNever},
			{ID: "mood", Name: "Mood", Repeat: models.RepeatDaily},
		},
		Questions: []service.QuestionInput{{ID: "score", ModuleID: "mood", Text: "Score", Type: "slider"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create study: status = %d", resp.StatusCode)
	}
	var study models.Study
	decode(t, resp, &study)
	base := "/api/studies/" + itoa(study.ID)

	day := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	batch := []service.IngestResponse{
		{UserID: "p1", ModuleID: "consent", ResponseTime: day.AddDate(0, 0, 2), Responses: map[string]any{"agree": "yes"}},
	}
	for _, d := range []int{0, 1, 3, 4, 6} {
		batch = append(batch, service.IngestResponse{UserID: "p1", ModuleID: "mood", ResponseTime: day.AddDate(0, 0, d), Responses: map[string]any{"score": d}})
	}
	if resp := srv.do(t, http.MethodPost, base+"/responses", admin, batch); resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest: status = %d", resp.StatusCode)
	}

	resp = srv.do(t, http.MethodGet, base+"/responses:labeled?module_id=mood&sort=-response_time&limit=2&skip=1", admin, nil)
	var page service.ResponsePage
	decode(t, resp, &page)
	if page.Total != 5 || len(page.Responses) != 2 {
		t.Fatalf("labeled page total=%d len=%d", page.Total, len(page.Responses))
	}
	if !page.Responses[0].ResponseTime.Equal(day.AddDate(0, 0, 4)) {
		t.Errorf("first row = %v, want day 5", page.Responses[0].ResponseTime)
	}

	resp = srv.do(t, http.MethodGet, base+"/responses:labeled?from=2025-04-02&to=2025-04-04", admin, nil)
	decode(t, resp, &page)
	if page.Total != 3 {
		t.Errorf("date range total = %d, want 3", page.Total)
	}

	if resp := srv.do(t, http.MethodGet, base+"/responses:labeled?limit=999999", admin, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized limit: status = %d, want 400", resp.StatusCode)
	}

	resp = srv.do(t, http.MethodGet, base+"/responses:facets", admin, nil)
	var facets models.Facets
	decode(t, resp, &facets)
	if len(facets.Users) != 1 || len(facets.Modules) != 2 {
		t.Errorf("facets = %+v", facets)
	}

	resp = srv.do(t, http.MethodGet, base+"/adherence", admin, nil)
	var summaries []struct {
		UserID     string `json:"user_id"`
		Completion int    `json:"completion"`
	}
	decode(t, resp, &summaries)
	if len(summaries) != 1 || summaries[0].Completion != 67 {
		t.Errorf("adherence = %+v, want p1 at 67%%", summaries)
	}

	resp = srv.do(t, http.MethodGet, "/api/v2/adherence/structure-count?study_id="+itoa(study.ID), admin, nil)
	var sc models.StructureCount
	decode(t, resp, &sc)
	if sc.ModuleExpected["mood"] != 8 {
		t.Errorf("structure = %+v", sc)
	}

	resp = srv.do(t, http.MethodGet, "/api/v2/adherence/expected?study_id="+itoa(study.ID)+"&from=2025-04-01&to=2025-04-03", admin, nil)
	var occ []models.ExpectedOccurrence
	decode(t, resp, &occ)
	if len(occ) != 3 {
		t.Errorf("expected windows = %d, want 3", len(occ))
	}

	if resp := srv.do(t, http.MethodGet, base+"/sleep", admin, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("sleep without roles: status = %d, want 400", resp.StatusCode)
	}

	resp = srv.do(t, http.MethodGet, base+"/variables?var=mood:score&bin=day", admin, nil)
	var points []map[string]any
	decode(t, resp, &points)
	if len(points) != 5 {
		t.Errorf("variables = %d points, want 5", len(points))
	}

	// researchers need a membership to see the study
	if _, err := srv.auth.CreateUser(ctx, service.CreateUserInput{Username: "res2", Password: "password123"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	researcher := srv.login(t, "res2", "password123")
	if resp := srv.do(t, http.MethodGet, base+"/questions", researcher, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-member: status = %d, want 403", resp.StatusCode)
	}
	if resp := srv.do(t, http.MethodPost, "/api/user/studies", researcher, map[string]int64{"study_id": study.ID}); resp.StatusCode != http.StatusForbidden {
		t.Errorf("self membership: status = %d, want 403", resp.StatusCode)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
