// Package monitor exposes an optional read-only HTTP and WebSocket view
// over a running dispatcher: pool/worker/work counts, group membership,
// pause/resume/stop/cancel controls, a Prometheus scrape endpoint, and a
// live event feed, built the way the teacher repo layers chi routes,
// auth, and rate limiting over its own admin API.
package monitor

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/dispatcher"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/monitor/websocket"
)

// Server is the monitor's HTTP surface over a single Dispatcher.
type Server struct {
	router *chi.Mux
	cfg    config.MonitorOptions
	stats  *statsHandler
	wsHub  *websocket.Hub
	wsHdl  *websocket.Handler
}

// NewServer builds the monitor's router for pool, wired against bus for
// its live event feed. It does not itself listen; call Router() and
// pass it to an http.Server, or use Start/Stop to manage the websocket
// hub's lifecycle alongside your own listener.
func NewServer(cfg config.MonitorOptions, pool *dispatcher.Dispatcher, bus *events.Bus) *Server {
	hub := websocket.NewHub(bus)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		stats:  newStatsHandler(pool),
		wsHub:  hub,
		wsHdl:  websocket.NewHandler(hub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(Auth(s.cfg.Auth))
		if s.cfg.RateLimitRPS > 0 {
			r.Use(ClientRateLimit(s.cfg.RateLimitRPS))
		}

		r.Get("/stats", s.stats.Overview)
		r.Get("/work/waiting", s.stats.WaitingWork)
		r.Get("/work/failed", s.stats.FailedWork)
		r.Get("/work/{id}", s.stats.GetWork)
		r.Post("/work/{id}/cancel", s.stats.CancelWork)
		r.Get("/groups/{name}", s.stats.GroupMembers)

		r.Post("/pool/pause", s.stats.Pause)
		r.Post("/pool/resume", s.stats.Resume)
		r.Post("/pool/stop", s.stats.Stop)
	})

	s.router.Get("/ws", s.wsHdl.ServeWS)

	// A JSON health check distinct from the heartbeat above, for callers
	// that want a structured body rather than the load-balancer "." reply.
	s.router.Get("/admin/health", Health)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}
}

// Start begins the websocket hub's event-bus subscription.
func (s *Server) Start(ctx context.Context) {
	s.wsHub.Run(ctx)
}

// Stop tears down the websocket hub and disconnects every client.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router, for embedding or for passing straight
// to http.ListenAndServe.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
