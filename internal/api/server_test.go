package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/siridb/go-siridb-connector"
	"github.com/siridb/go-siridb-connector/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()

	cluster, err := siridb.NewCluster(siridb.ClusterConfig{
		Username: "iris",
		Password: "siri",
		DBName:   "dbtest",
		Hostlist: []siridb.EndpointSpec{
			{Host: "siridb01", Port: 9000, Weight: 2},
			{Host: "siridb02", Port: 9000, IsBackup: true},
		},
	})
	if err != nil {
		t.Fatalf("NewCluster: %v", err)
	}

	s := NewServer(cluster, metrics.New(), "dbtest")

	mr := mux.NewRouter()
	mr.HandleFunc("/endpoints", s.listEndpoints).Methods("GET")
	mr.HandleFunc("/status", s.statusHandler).Methods("GET")
	mr.HandleFunc("/health", s.healthHandler).Methods("GET")
	mr.HandleFunc("/ready", s.readyHandler).Methods("GET")

	return s, mr
}

func TestListEndpoints(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/endpoints", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	var result []endpointResponse
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(result))
	}
	if result[0].Weight != 2 {
		t.Errorf("expected weight 2, got %d", result[0].Weight)
	}
	if !result[1].IsBackup {
		t.Error("expected second endpoint to be a backup")
	}
	if result[0].Connected {
		t.Error("expected endpoints to start disconnected")
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	var result map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&result)
	if result["dbname"] != "dbtest" {
		t.Errorf("expected dbname dbtest, got %v", result["dbname"])
	}
	if int(result["num_endpoints"].(float64)) != 2 {
		t.Errorf("expected num_endpoints 2, got %v", result["num_endpoints"])
	}
}

func TestHealthEndpointUnhealthyWhenNothingConnected(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no connected endpoints, got %d", rr.Code)
	}
}

func TestReadyEndpointNotReadyWhenNothingAvailable(t *testing.T) {
	_, mr := newTestServer(t)

	req := httptest.NewRequest("GET", "/ready", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no available endpoints, got %d", rr.Code)
	}
}

func TestDashboardServesHTML(t *testing.T) {
	_, mr := newTestServer(t)
	mr.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/dashboard", nil)
	rr := httptest.NewRecorder()
	s.dashboardHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type: %s", ct)
	}
}
