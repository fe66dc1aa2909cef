// Package api is the HTTP adapter over the monitoring core: push
// ingestion, uptime and maintenance queries, status page snapshots, owner
// controls and the websocket feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/fuomag9/beatkeeper/internal/config"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/monitor"
	"github.com/fuomag9/beatkeeper/internal/uptime"
)

// Store is the persistence used by the handlers.
type Store interface {
	FindMonitor(ctx context.Context, id int) (*models.Monitor, error)
	CreateMonitor(ctx context.Context, m *models.Monitor) error
	SetMonitorActive(ctx context.Context, id int, active bool) error
	CreateMaintenance(ctx context.Context, m *models.Maintenance, monitorIDs ...int) error
	FindMonitorByPushToken(ctx context.Context, token string) (*models.Monitor, error)
	FindMaintenanceWindowsFor(ctx context.Context, monitorID int) ([]models.Maintenance, error)
	StatsHourly(ctx context.Context, monitorID int, start, end time.Time) ([]models.StatHourly, error)
	FindStatusPage(ctx context.Context, slug string) (*models.StatusPage, []int, error)
}

// Pusher records results pushed by monitored targets.
type Pusher interface {
	Push(ctx context.Context, monitorID int, r monitor.Result) (*models.Heartbeat, error)
}

// MonitorControl applies owner actions to the running scheduler.
type MonitorControl interface {
	Validate(m *models.Monitor) error
	Update(m *models.Monitor) error
	Trigger(monitorID int) error
}

// HeartbeatReader returns the most recent heartbeat of a monitor.
type HeartbeatReader interface {
	PreviousHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error)
}

// MaintenanceChecker reports whether a monitor is suppressed.
type MaintenanceChecker interface {
	IsUnderMaintenance(ctx context.Context, monitorID int, now time.Time) (bool, error)
}

// UptimeReader computes uptime statistics.
type UptimeReader interface {
	Stats(ctx context.Context, windowHours, monitorID int) (*uptime.Stats, error)
	Snapshot(ctx context.Context, monitorIDs []int) (map[int]uptime.MonitorSnapshot, error)
}

// Server bundles the collaborators of the HTTP handlers.
type Server struct {
	Store       Store
	Pusher      Pusher
	Heartbeats  HeartbeatReader
	Maintenance MaintenanceChecker
	Uptime      UptimeReader
	Control     MonitorControl
	WebSocket   http.HandlerFunc
	Now         func() time.Time

	// Owner resolves a bearer token to the ID of the user it was issued
	// to. Without it every owner route answers 401.
	Owner func(token string) (int, error)
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, srv Server) http.Handler {
	if srv.Now == nil {
		srv.Now = time.Now
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	pushLimiter := NewRateLimiter(rate.Limit(2), 10)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		// Push ingestion, called by the monitored targets themselves
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(pushLimiter))
			r.Get("/push/{token}", HandlePush(srv.Store, srv.Pusher))
			r.Post("/push/{token}", HandlePush(srv.Store, srv.Pusher))
		})

		r.Get("/monitors/{id}/heartbeats/latest", HandleGetLatestHeartbeat(srv.Store, srv.Heartbeats))
		r.Get("/monitors/{id}/maintenance", HandleGetMonitorMaintenance(srv.Store, srv.Maintenance, srv.Now))
		r.Get("/monitors/{id}/uptime", HandleGetMonitorUptime(srv.Store, srv.Uptime))
		r.Get("/monitors/{id}/uptime/hourly", HandleGetMonitorHourlyUptime(srv.Store, srv.Now))

		// Owner controls
		r.Group(func(r chi.Router) {
			r.Use(OwnerAuthMiddleware(srv.Owner))
			r.Post("/monitors", HandleCreateMonitor(srv.Store, srv.Control))
			r.Post("/monitors/{id}/pause", HandleSetMonitorActive(srv.Store, srv.Control, false))
			r.Post("/monitors/{id}/resume", HandleSetMonitorActive(srv.Store, srv.Control, true))
			r.Post("/monitors/{id}/check", HandleTriggerCheck(srv.Store, srv.Control))
			r.Post("/maintenance", HandleCreateMaintenance(srv.Store, srv.Now))
		})

		r.Get("/status/heartbeats", HandleGetStatusHeartbeats(srv.Uptime))
		r.Get("/status-pages/{slug}", HandleGetPublicStatusPage(srv.Store, srv.Uptime))

		// Badges
		r.Get("/badge/{id}/status", HandleStatusBadge(srv.Store, srv.Heartbeats))
		r.Get("/badge/{id}/uptime", HandleUptimeBadge(srv.Store, srv.Uptime))
		r.Get("/badge/{id}/ping", HandlePingBadge(srv.Store, srv.Uptime))
	})

	// WebSocket endpoint
	if srv.WebSocket != nil {
		r.Get("/ws", srv.WebSocket)
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
