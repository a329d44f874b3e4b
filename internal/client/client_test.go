package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydash/internal/analytics"
	"studydash/internal/models"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
	_, err = New("://nope")
	require.Error(t, err)
}

func TestLoginThenBearerToken(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret123" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
				return
			}
			writeJSON(w, http.StatusOK, LoginResult{Token: "tok-1", User: models.User{ID: 1, Username: body["username"]}})
		case "/api/auth/me":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			writeJSON(w, http.StatusOK, models.User{ID: 1, Username: "alice", Role: models.RoleAdmin})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	anon, err := New(srv.URL)
	require.NoError(t, err)
	assert.False(t, anon.HasToken())

	_, err = anon.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid username or password", apiErr.Message)

	res, err := anon.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)

	_, err = anon.Me(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	authed := anon.WithToken(res.Token)
	assert.True(t, authed.HasToken())
	me, err := authed.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.True(t, me.IsAdmin())
}

func TestLabeledResponsesQuery(t *testing.T) {
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/studies/7/responses:labeled", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "p1", q.Get("user_id"))
		assert.Equal(t, "-response_time", q.Get("sort"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "2025-04-01T00:00:00Z", q.Get("from"))
		assert.Empty(t, q.Get("skip"))

		writeJSON(w, http.StatusOK, ResponsePage{
			Total: 1,
			Responses: []models.LabeledResponse{{
				SurveyResponse: models.SurveyResponse{ID: 3, UserID: "p1", ModuleID: "mood"},
				ModuleName:     "Mood",
				Payload:        models.RawPayload([]models.RawAnswer{{QuestionID: "q", Value: 4.0}}),
			}},
		})
	})

	c, err := New(srv.URL, WithToken("t"))
	require.NoError(t, err)
	page, err := c.LabeledResponses(context.Background(), 7, ResponseQuery{UserID: "p1", Sort: "-response_time", Limit: 50, From: from})
	require.NoError(t, err)
	require.Len(t, page.Responses, 1)
	raw, ok := page.Responses[0].Payload.AsRaw()
	require.True(t, ok)
	assert.Equal(t, "q", raw[0].QuestionID)
}

func TestValidationErrorFields(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": map[string]string{"bin": "must be hour or day"},
		})
	})
	c, err := New(srv.URL, WithToken("t"))
	require.NoError(t, err)

	_, err = c.Variables(context.Background(), 1, VariableQuery{Variables: []string{"m:q"}, Bin: "week"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "must be hour or day", apiErr.Fields["bin"])
	assert.Contains(t, apiErr.Error(), "bin must be hour or day")
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestDerivedEndpoints(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/studies/2/sleep":
			assert.Equal(t, "bed", q.Get("bedtime"))
			assert.Equal(t, "rise", q.Get("risetime"))
			assert.Empty(t, q.Get("diary_date"))
			d := 405
			writeJSON(w, http.StatusOK, []analytics.SleepRow{{UserID: "p1", Date: "2025-04-01", DurationMin: &d}})
		case "/api/studies/2/variables":
			assert.Equal(t, []string{"mood:score", "sleep:hours"}, q["var"])
			assert.Equal(t, "1", q.Get("zscore"))
			writeJSON(w, http.StatusOK, []analytics.VariablePoint{{UserID: "p1", Variable: "mood:score", Value: 0}})
		case "/api/v2/adherence/expected":
			assert.Equal(t, "2", q.Get("study_id"))
			assert.Equal(t, "Europe/London", q.Get("tz"))
			writeJSON(w, http.StatusOK, []models.ExpectedOccurrence{{ModuleID: "mood", Date: "2025-04-01"}})
		case "/api/v2/adherence/structure-count":
			writeJSON(w, http.StatusOK, models.StructureCount{StudyDays: 7, ModuleExpected: map[string]int{"mood": 7}})
		case "/api/studies/2/adherence":
			assert.Equal(t, "alias", q.Get("question_id"))
			writeJSON(w, http.StatusOK, []analytics.UserSummary{{UserID: "p1", Label: "Robin", Completion: 67}})
		case "/api/user/studies":
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	c, err := New(srv.URL+"/", WithToken("t"))
	require.NoError(t, err)

	rows, err := c.Sleep(ctx, 2, analytics.SleepRoles{Bedtime: "bed", Risetime: "rise"}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 405, *rows[0].DurationMin)

	points, err := c.Variables(ctx, 2, VariableQuery{Variables: []string{"mood:score", "sleep:hours"}, ZScore: true})
	require.NoError(t, err)
	assert.Len(t, points, 1)

	occ, err := c.Expected(ctx, ExpectedQuery{StudyID: 2, Timezone: "Europe/London"})
	require.NoError(t, err)
	assert.Len(t, occ, 1)

	sc, err := c.StructureCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, sc.ModuleExpected["mood"])

	sums, err := c.Adherence(ctx, 2, MappingQuery{ModuleID: "consent", QuestionID: "alias"})
	require.NoError(t, err)
	assert.Equal(t, 67, sums[0].Completion)

	require.NoError(t, c.RemoveMembership(ctx, 3, 2))

	_, err = c.Facets(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestContextCancellation(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c, err := New(srv.URL, WithToken("t"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListStudies(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
