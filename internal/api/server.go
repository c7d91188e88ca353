// Package api exposes an HTTP status/metrics server for a running
// Cluster: endpoint state, Prometheus metrics, and a small dashboard,
// via a gorilla/mux router and a promhttp metrics handler.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siridb/go-siridb-connector"
	"github.com/siridb/go-siridb-connector/internal/metrics"
)

// Server is the cluster status, health and metrics HTTP server.
type Server struct {
	cluster    *siridb.Cluster
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	dbname     string
}

// NewServer creates a new status/metrics API server for cluster.
// metrics may be nil, in which case /metrics serves the default
// Prometheus registry.
func NewServer(cluster *siridb.Cluster, m *metrics.Collector, dbname string) *Server {
	return &Server{
		cluster:   cluster,
		metrics:   m,
		startTime: time.Now(),
		dbname:    dbname,
	}
}

// Start starts the HTTP API server on bind:port.
func (s *Server) Start(bind string, port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/endpoints", s.listEndpoints).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%d", bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[api] status API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type endpointResponse struct {
	Addr      string `json:"addr"`
	Weight    int    `json:"weight"`
	IsBackup  bool   `json:"is_backup"`
	Connected bool   `json:"connected"`
	Available bool   `json:"available"`
}

func (s *Server) endpointSnapshot() []endpointResponse {
	eps := s.cluster.Endpoints()
	out := make([]endpointResponse, 0, len(eps))
	for _, ep := range eps {
		out = append(out, endpointResponse{
			Addr:      ep.Addr(),
			Weight:    ep.Weight,
			IsBackup:  ep.IsBackup,
			Connected: ep.Connected(),
			Available: ep.Available(),
		})
	}
	return out
}

func (s *Server) listEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.endpointSnapshot())
}

func (s *Server) anyConnected() bool {
	for _, ep := range s.cluster.Endpoints() {
		if ep.Connected() {
			return true
		}
	}
	return false
}

func (s *Server) anyAvailable() bool {
	for _, ep := range s.cluster.Endpoints() {
		if ep.Available() {
			return true
		}
	}
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.anyConnected()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    boolToStatus(healthy),
		"endpoints": s.endpointSnapshot(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.anyAvailable() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()
	eps := s.cluster.Endpoints()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"dbname":         s.dbname,
		"num_endpoints":  len(eps),
		"endpoints":      s.endpointSnapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
