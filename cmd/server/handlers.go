package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aonescu/remedy/internal/engine"
)

// GET /api/v1/rules
func (api *APIServer) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.respondJSON(w, api.loop.Rules())
}

// GET /api/v1/stats
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := api.loop.Snapshot()
	leaderState := "unknown"
	if api.coord != nil {
		leaderState = api.coord.State().String()
	}

	stats := map[string]interface{}{
		"rules_loaded":    len(api.loop.Rules()),
		"rules_evaluated": snap.RulesEvaluated,
		"actions_taken":   snap.ActionsTaken,
		"errors":          snap.Errors,
		"last_check":      snap.LastCheck,
		"leader_state":    leaderState,
	}

	api.respondJSON(w, stats)
}

// GET /api/v1/pods?namespace=default
func (api *APIServer) handlePods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = "default"
	}

	statuses, err := api.state.PodsByStatus(r.Context(), namespace)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"namespace": namespace,
		"pods":      statuses,
	}

	api.respondJSON(w, response)
}

// GET /api/v1/logs?namespace=default&pod=api-7f9c&tail=100
func (api *APIServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	namespace := r.URL.Query().Get("namespace")
	pod := r.URL.Query().Get("pod")
	if namespace == "" || pod == "" {
		http.Error(w, "namespace and pod are required", http.StatusBadRequest)
		return
	}

	tail := int64(100)
	if tailStr := r.URL.Query().Get("tail"); tailStr != "" {
		if t, err := strconv.ParseInt(tailStr, 10, 64); err == nil && t > 0 {
			tail = t
		}
	}

	logs, err := api.state.PodLogs(r.Context(), pod, namespace, tail)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"namespace": namespace,
		"pod":       pod,
		"logs":      logs,
	}

	api.respondJSON(w, response)
}

// POST /api/v1/heal
// Body: {"namespace": "default", "pod": "api-7f9c"}
func (api *APIServer) handleHeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Namespace string `json:"namespace"`
		Pod       string `json:"pod"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Namespace == "" || req.Pod == "" {
		http.Error(w, "namespace and pod are required", http.StatusBadRequest)
		return
	}

	outcome, err := api.executor.ManualRestart(r.Context(), req.Namespace, req.Pod)
	if err != nil {
		response := map[string]interface{}{
			"outcome": string(outcome),
			"error":   err.Error(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(response)
		return
	}

	status := http.StatusOK
	if outcome != engine.OutcomeExecuted {
		status = http.StatusConflict
	}

	response := map[string]interface{}{
		"namespace": req.Namespace,
		"pod":       req.Pod,
		"outcome":   string(outcome),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// GET /api/v1/actions?limit=50
func (api *APIServer) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	actions, err := api.store.RecentActions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.respondJSON(w, actions)
}

// GET /api/v1/rca
func (api *APIServer) handleRCA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, ok := api.store.LastRCA()
	if !ok {
		http.Error(w, "No RCA report available yet", http.StatusNotFound)
		return
	}

	api.respondJSON(w, report)
}

// POST /api/v1/prometheus/query
// Body: {"query": "up == 0"}
func (api *APIServer) handlePrometheusQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query string `json:"query"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	value, err := api.prom.Query(r.Context(), req.Query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"query":  req.Query,
		"result": value,
	}

	api.respondJSON(w, response)
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}

	if err := api.store.Ping(); err != nil {
		health["status"] = "unhealthy"
		health["storage"] = "disconnected"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		health["storage"] = "connected"
	}

	api.respondJSON(w, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":        true,
		"rules_loaded": len(api.loop.Rules()) > 0,
	}
	api.respondJSON(w, ready)
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		api.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).Dur("duration", time.Since(start)).Msg("request")
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
