package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydash/internal/client"
	"studydash/internal/database"
	"studydash/internal/handlers"
	"studydash/internal/security"
	"studydash/internal/service"
	"studydash/internal/session"
)

func startServer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunMigrations(ctx)
	require.NoError(t, err)

	authService := service.NewAuthService(db, security.NewTokenIssuer("cli-test-secret-value", time.Hour), nil, nil)
	_, err = authService.EnsureAdmin(ctx, "admin", "adminpassword")
	require.NoError(t, err)

	studyService := service.NewStudyService(db)
	limiter := security.NewRateLimiter(100, time.Minute)
	t.Cleanup(limiter.Stop)
	startup := handlers.NewStartupStatus()
	startup.MarkReady()

	rt := &handlers.Router{
		Middleware: handlers.NewMiddleware(authService, limiter, nil),
		Auth:       handlers.NewAuthHandler(authService, nil),
		Studies:    handlers.NewStudyHandler(studyService, service.NewResponseService(db), nil),
		Analytics:  handlers.NewAnalyticsHandler(studyService, service.NewAnalyticsService(db, nil), nil),
		Startup:    startup,
		DB:         db,
	}
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(ctx context.Context, a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	return root.ExecuteContext(ctx)
}

type cli struct {
	t    *testing.T
	home string
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	a := newApp(&out, strings.NewReader(stdin))
	err := execute(context.Background(), a, append([]string{"--home", c.home}, args...)...)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, "studydash %v", args)
	return out
}

func writeJSONFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestCLIWorkflow(t *testing.T) {
	url := startServer(t)
	home := t.TempDir()
	c := &cli{t: t, home: home}

	_, err := c.run("", "whoami")
	require.ErrorIs(t, err, session.ErrNotLoggedIn)

	out, err := c.run("adminpassword\n", "login", "--server", url, "-u", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin (admin)")
	assert.Contains(t, c.mustRun("whoami"), "admin")
	assert.Contains(t, c.mustRun("health"), "ok (database ok)")

	def := writeJSONFile(t, home, "study.json", map[string]any{
		"name":       "Mood study",
		"study_days": 8,
		"modules": []map[string]any{
			{"id": "consent", "name": "Consent", "repeat": "never"},
			{"id": "mood", "name": "Mood", "repeat": "daily"},
		},
		"questions": []map[string]any{
			{"id": "alias", "module_id": "consent", "text": "Alias"},
			{"id": "score", "module_id": "mood", "text": "Score", "type": "slider"},
		},
	})
	assert.Contains(t, c.mustRun("studies", "create", def), "(id 1)")
	assert.Contains(t, c.mustRun("studies"), "Mood study")
	assert.Contains(t, c.mustRun("studies", "modules", "-s", "1"), "alias")

	day := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	batch := []client.IngestResponse{
		{UserID: "p1", ModuleID: "consent", ResponseTime: day.AddDate(0, 0, 2), Responses: map[string]any{"alias": "Robin"}},
	}
	for _, d := range []int{0, 1, 3, 4, 6} {
		batch = append(batch, client.IngestResponse{UserID: "p1", ModuleID: "mood", ResponseTime: day.AddDate(0, 0, d), Responses: map[string]any{"score": d}})
	}
	assert.Contains(t, c.mustRun("ingest", "-s", "1", writeJSONFile(t, home, "batch.json", batch)), "Stored 6 responses")

	out = c.mustRun("adherence", "-s", "1", "--label-module", "consent", "--label-question", "alias")
	assert.Contains(t, out, "Robin")
	assert.Contains(t, out, "67%")
	assert.Contains(t, c.mustRun("adherence", "-s", "1", "--server-side"), "67%")

	out = c.mustRun("responses", "-s", "1", "--group-by", "module", "--limit", "4")
	assert.Contains(t, out, "Showing 4 of 6 responses")
	assert.Contains(t, out, "Mood")

	c.mustRun("note", "-s", "1", "2025-04-02", "p1", "travelling")
	assert.Contains(t, c.mustRun("calendar", "-s", "1"), "travelling")
	c.mustRun("note", "-s", "1", "2025-04-02", "p1", "--delete")
	assert.NotContains(t, c.mustRun("calendar", "-s", "1"), "travelling")

	_, err = c.run("", "sleep", "-s", "1")
	require.ErrorContains(t, err, "sleep roles unset")

	out = c.mustRun("variables", "-s", "1", "--var", "mood:score")
	assert.Contains(t, out, "mood:score")

	out = c.mustRun("users", "create", "bob", "--studies", "1")
	assert.Contains(t, out, "Temporary password:")
	_, err = c.run("", "users", "create", "bob")
	require.ErrorContains(t, err, "taken")

	c.mustRun("logout")
	_, err = c.run("", "whoami")
	require.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestCLIRejectsBadInput(t *testing.T) {
	c := &cli{t: t, home: t.TempDir()}

	_, err := c.run("", "adherence")
	require.ErrorContains(t, err, "no study selected")

	_, err = c.run("", "note", "-s", "1", "April 2", "p1", "x")
	require.ErrorContains(t, err, "invalid date")

	_, err = c.run("", "responses", "-s", "1", "--group-by", "week")
	require.ErrorContains(t, err, "invalid grouping")
}

func TestExplain(t *testing.T) {
	err := explain(&client.APIError{StatusCode: 401, Message: "authentication required"})
	assert.Contains(t, err.Error(), "studydash login")

	err = explain(&client.APIError{StatusCode: 400, Message: "Validation failed", Fields: map[string]string{"bin": "bad"}})
	assert.Contains(t, err.Error(), "bin")
}

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	from, err := parseDate("2025-06-01", loc, false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, loc), from)

	to, err := parseDate("2025-06-01", loc, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 0, loc), to)

	_, err = parseDate("yesterday", loc, false)
	require.Error(t, err)
}
