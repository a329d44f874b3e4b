package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Router bundles the handlers served by the API
type Router struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Studies    *StudyHandler
	Analytics  *AnalyticsHandler
	Startup    *StartupStatus
	DB         Pinger
	Log        *zap.Logger
}

// Handler registers every route and wraps the mux with request logging
func (rt *Router) Handler() http.Handler {
	m := rt.Middleware
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", rt.Startup.Health(rt.DB))

	// Auth and account management
	mux.HandleFunc("POST /api/auth/login", m.RateLimit(rt.Auth.Login))
	mux.HandleFunc("GET /api/auth/me", m.RequireAuth(rt.Auth.Me))
	mux.HandleFunc("PATCH /api/auth/change-password", m.RequireAuth(rt.Auth.ChangePassword))
	mux.HandleFunc("GET /api/auth/check-username", m.RequireAdmin(rt.Auth.CheckUsername))
	mux.HandleFunc("GET /api/auth/users", m.RequireAdmin(rt.Auth.ListUsers))
	mux.HandleFunc("POST /api/auth/users", m.RequireAdmin(rt.Auth.CreateUser))
	mux.HandleFunc("PATCH /api/auth/users/{id}", m.RequireAdmin(rt.Auth.UpdateUser))
	mux.HandleFunc("DELETE /api/auth/users/{id}", m.RequireAdmin(rt.Auth.DeleteUser))

	// Studies and membership
	mux.HandleFunc("GET /api/studies", m.RequireAuth(rt.Studies.ListStudies))
	mux.HandleFunc("POST /api/studies", m.RequireAdmin(rt.Studies.CreateStudy))
	mux.HandleFunc("POST /api/user/studies", m.RequireAuth(rt.Studies.AddMembership))
	mux.HandleFunc("DELETE /api/user/studies", m.RequireAuth(rt.Studies.RemoveMembership))

	// Study data
	mux.HandleFunc("GET /api/studies/{id}/questions", m.RequireAuth(rt.Studies.Questions))
	mux.HandleFunc("GET /api/studies/{id}/modules", m.RequireAuth(rt.Studies.Modules))
	mux.HandleFunc("GET /api/studies/{id}/responses:labeled", m.RequireAuth(rt.Studies.LabeledResponses))
	mux.HandleFunc("GET /api/studies/{id}/responses:facets", m.RequireAuth(rt.Studies.Facets))
	mux.HandleFunc("POST /api/studies/{id}/responses", m.RequireAdmin(rt.Studies.IngestResponses))
	mux.HandleFunc("GET /api/studies/{id}/user-mapping", m.RequireAuth(rt.Studies.UserMapping))

	// Schedule
	mux.HandleFunc("GET /api/v2/adherence/expected", m.RequireAuth(rt.Analytics.Expected))
	mux.HandleFunc("GET /api/v2/adherence/structure-count", m.RequireAuth(rt.Analytics.StructureCount))

	// Derived analytics
	mux.HandleFunc("GET /api/studies/{id}/adherence", m.RequireAuth(rt.Analytics.Adherence))
	mux.HandleFunc("GET /api/studies/{id}/sleep", m.RequireAuth(rt.Analytics.Sleep))
	mux.HandleFunc("GET /api/studies/{id}/variables", m.RequireAuth(rt.Analytics.Variables))
	mux.HandleFunc("GET /api/studies/{id}/variables:catalog", m.RequireAuth(rt.Analytics.VariableCatalog))

	log := rt.Log
	if log == nil {
		log = zap.NewNop()
	}
	return Logging(log, mux)
}
