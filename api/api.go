// Package api exposes the HTTP query surface and the WebSocket alert feed.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hostsentry/config"
	"hostsentry/core"
	"hostsentry/storage"
)

// AlertStorer is the alert query surface the API needs.
type AlertStorer interface {
	GetAlerts(ctx context.Context, severity string, limit, offset int) ([]core.Alert, error)
	GetAlert(ctx context.Context, id string) (*core.Alert, error)
	CountAlerts(ctx context.Context) (int64, error)
}

// EventStorer is the event query surface the API needs.
type EventStorer interface {
	GetRecentEvents(ctx context.Context, limit int) ([]core.Event, error)
}

// MetricsStorer is the history query surface the API needs.
type MetricsStorer interface {
	GetMetricsHistory(ctx context.Context, since time.Time, limit int) ([]core.SystemMetrics, error)
	GetRiskHistory(ctx context.Context, since time.Time, limit int) ([]storage.RiskPoint, error)
}

// Acknowledger marks alerts acknowledged and lifts their suppression.
type Acknowledger interface {
	Acknowledge(ctx context.Context, id string) error
}

// RuleLister exposes the active rule set.
type RuleLister interface {
	Rules() []core.Rule
}

// RiskReader exposes the live risk score.
type RiskReader interface {
	Current() float64
	ContributionCount() int
}

// API holds the HTTP server and its dependencies.
type API struct {
	router         *mux.Router
	server         *http.Server
	alertStorage   AlertStorer
	eventStorage   EventStorer
	metricsStorage MetricsStorer
	acknowledger   Acknowledger
	engine         RuleLister
	scorer         RiskReader
	bus            *core.EventBus
	hub            *Hub
	config         *config.Config
	logger         *zap.SugaredLogger
	started    time.Time
	visitors   map[string]*visitor
	visitorsMu sync.Mutex
	stopCh     chan struct{}
}

// NewAPI creates the API server. The hub must already be started.
func NewAPI(alerts AlertStorer, events EventStorer, history MetricsStorer, ack Acknowledger, engine RuleLister, scorer RiskReader, bus *core.EventBus, hub *Hub, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:         mux.NewRouter(),
		alertStorage:   alerts,
		eventStorage:   events,
		metricsStorage: history,
		acknowledger:   ack,
		engine:         engine,
		scorer:         scorer,
		bus:            bus,
		hub:            hub,
		config:         cfg,
		logger:         logger,
		started:        time.Now(),
		visitors:       make(map[string]*visitor),
		stopCh:         make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupVisitors()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)
	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}", a.getAlert).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}/acknowledge", a.acknowledgeAlert).Methods("POST")
	a.router.HandleFunc("/api/events", a.getEvents).Methods("GET")
	a.router.HandleFunc("/api/risk", a.getRisk).Methods("GET")
	a.router.HandleFunc("/api/risk/history", a.getRiskHistory).Methods("GET")
	a.router.HandleFunc("/api/metrics/history", a.getMetricsHistory).Methods("GET")
	a.router.HandleFunc("/api/rules", a.getRules).Methods("GET")
	a.router.HandleFunc("/api/status", a.getStatus).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
	a.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(a.hub, a.logger, w, r)
	})
}

// Router returns the configured handler, mainly for tests.
func (a *API) Router() http.Handler {
	return a.router
}

// Start runs the server until it is stopped. Blocks.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
