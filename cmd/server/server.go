package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aonescu/remedy/internal/engine"
	"github.com/aonescu/remedy/internal/history"
	"github.com/aonescu/remedy/internal/leader"
	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/metrics"
)

type APIServer struct {
	loop     *engine.ControlLoop
	executor *engine.Executor
	state    engine.StateProvider
	prom     engine.MetricsProvider
	store    history.Store
	coord    *leader.Coordinator
	mux      *http.ServeMux
	log      zerolog.Logger
}

func NewAPIServer(loop *engine.ControlLoop, exec *engine.Executor, state engine.StateProvider,
	prom engine.MetricsProvider, store history.Store, coord *leader.Coordinator) *APIServer {
	api := &APIServer{
		loop:     loop,
		executor: exec,
		state:    state,
		prom:     prom,
		store:    store,
		coord:    coord,
		mux:      http.NewServeMux(),
		log:      logging.WithComponent("api"),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Rule and agent introspection
	api.mux.HandleFunc("/api/v1/rules", api.handleRules)
	api.mux.HandleFunc("/api/v1/stats", api.handleStats)

	// Cluster views
	api.mux.HandleFunc("/api/v1/pods", api.handlePods)
	api.mux.HandleFunc("/api/v1/logs", api.handleLogs)

	// Remediation
	api.mux.HandleFunc("/api/v1/heal", api.handleHeal)
	api.mux.HandleFunc("/api/v1/actions", api.handleActions)
	api.mux.HandleFunc("/api/v1/rca", api.handleRCA)

	// Prometheus passthrough
	api.mux.HandleFunc("/api/v1/prometheus/query", api.handlePrometheusQuery)

	// Health check
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/ready", api.handleReady)

	// Prometheus scrape endpoint
	api.mux.Handle("/metrics", metrics.Handler())
}

// Handler returns the full middleware-wrapped handler chain.
func (api *APIServer) Handler() http.Handler {
	return api.corsMiddleware(api.loggingMiddleware(api.mux))
}

func (api *APIServer) Start(addr string) error {
	api.log.Info().Str("addr", addr).Msg("starting API server")
	return http.ListenAndServe(addr, api.Handler())
}
