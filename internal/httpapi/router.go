package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(d Deps) http.Handler {
	s := server{
		db:            d.DB,
		log:           d.Log,
		sessionSecret: []byte(d.SessionSecret),

		specs:          d.Specs,
		uploadIssuer:   d.UploadIssuer,
		uploadDuration: d.UploadDuration,
	}

	limit := d.RateLimitPerMinute
	if limit <= 0 {
		limit = 240
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.serverErrorLoggerMiddleware)
	r.Use(corsMiddleware(d.AllowedOrigins))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(newIPRateLimiter(limit, time.Minute).middleware)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.sessionAuthMiddleware)

			r.Post("/orgs", s.handleCreateOrg)
			r.Get("/orgs", s.handleListOrgs)
			r.Post("/orgs/select", s.handleSelectOrg)
			r.Post("/orgs/members", s.handleUpsertOrgMember)

			r.Get("/agents", s.handleListAgents)
			r.Post("/agents", s.handleCreateAgent)
			r.Get("/agents/{agentID}", s.handleGetAgent)
			r.Patch("/agents/{agentID}", s.handleUpdateAgent)
			r.Delete("/agents/{agentID}", s.handleDeleteAgent)

			r.Get("/sources", s.handleListSources)
			r.Post("/sources", s.handleCreateSource)
			r.Post("/sources/upload-credentials", s.handleUploadCredentials)
			r.Get("/sources/{sourceID}", s.handleGetSource)
			r.Put("/sources/{sourceID}", s.handleUpdateSource)
			r.Delete("/sources/{sourceID}", s.handleDeleteSource)
			r.Get("/sources/{sourceID}/tools", s.handleListSourceTools)
			r.Post("/sources/{sourceID}/regenerate-tools", s.handleRegenerateTools)

			r.Get("/api-keys", s.handleListAPIKeys)
			r.Post("/api-keys", s.handleCreateAPIKey)
			r.Delete("/api-keys/{keyID}", s.handleRevokeAPIKey)

			r.Get("/settings", s.handleGetSettings)
			r.Post("/settings", s.handleUpdateSettings)

			r.Get("/user/profile", s.handleGetProfile)
			r.Post("/user/profile", s.handleUpdateProfile)
			r.Post("/user/onboarding", s.handleSubmitOnboarding)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyAuthMiddleware)
			r.Get("/ext/agents", s.handleExtListAgents)
			r.Get("/ext/agents/{agentID}/tools", s.handleExtListAgentTools)
		})
	})

	return r
}
