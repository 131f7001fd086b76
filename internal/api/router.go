package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts every route under /api/v1.
//
//	GET /health           no auth
//	GET /printer/state    monitor
//	GET /printer/history  monitor
//	GET /ws               monitor, WebSocket state feed
//	GET /audit            control
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID, echoRequestID)
	r.Use(s.accessLog)
	r.Use(cors(s.cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.With(s.authMiddleware, s.requireLevel(s.monitorLevel)).Group(func(r chi.Router) {
			r.Get("/printer/state", s.handlePrinterState)
			r.Get("/printer/history", s.handlePrinterHistory)
			r.Get("/ws", s.handleWebSocket)
		})

		r.With(s.authMiddleware, s.requireLevel(s.controlLevel)).Get("/audit", s.handleListAuditLogs)
	})

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Observed    bool   `json:"observed"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, observed := s.state.Current()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     s.version,
		Observed:    observed,
		Connections: s.feed.Connections(),
	})
}
