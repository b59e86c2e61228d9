package httpserver

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ColdranAI/sqlbase/internal/core/service"
)

func (s *Server) setupRoutes(configSvc *service.ConfigService, broker *service.Broker, querySvc *service.QueryService, schemaSvc *service.SchemaService) {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	// Health probe
	r.Get("/health", s.handleHealth())

	// User API — the user id in the path is trusted; authentication
	// happens upstream of this service.
	r.Route("/v1/users/{userID}", func(api chi.Router) {
		if s.cfg.CORSOrigin != "" {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins:   []string{s.cfg.CORSOrigin},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
		}

		api.Route("/connection", func(conn chi.Router) {
			conn.Put("/", s.handleSaveConnection(configSvc))
			conn.Get("/", s.handleConnectionStatus(configSvc))
			conn.Delete("/", s.handleDeleteConnection(configSvc))
			conn.Post("/test", s.handleTestConnection(configSvc, broker))
			conn.Post("/preflight", s.handlePreflight(broker))
			conn.Post("/disconnect", s.handleDisconnect(broker))
		})

		// Query and schema hit the user's database; both sit behind the
		// per-user rate limit.
		api.Group(func(limited chi.Router) {
			limited.Use(s.userLimiter.Middleware)
			limited.Post("/query", s.handleQuery(querySvc))
			limited.Get("/schema", s.handleSchema(schemaSvc))
		})

		api.Get("/query-history", s.handleQueryHistory(querySvc))
	})

	s.router = r
}
