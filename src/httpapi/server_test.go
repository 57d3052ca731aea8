package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeCluster struct {
	statuses         []NodeStatus
	submittedCommand string
	result           string
	success          bool
	err              error
}

func (cluster *fakeCluster) NodeStatuses() []NodeStatus {
	return cluster.statuses
}

func (cluster *fakeCluster) Submit(command []byte, timeout time.Duration) (string, bool, error) {
	cluster.submittedCommand = string(command)
	return cluster.result, cluster.success, cluster.err
}

func serveRequest(cluster Cluster, method string, path string, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	registerRoutes(router, cluster)

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, path, reader))
	return recorder
}

func TestStatusEndpoint(t *testing.T) {
	cluster := &fakeCluster{statuses: []NodeStatus{
		{NodeId: 1, Role: "LEADER", Term: 3, Leader: 1, CommitIndex: 7},
		{NodeId: 2, Role: "FOLLOWER", Term: 3, Leader: 1, CommitIndex: 7},
	}}

	recorder := serveRequest(cluster, http.MethodGet, "/cluster/status", "")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var statuses []NodeStatus
	if err := json.Unmarshal(recorder.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if len(statuses) != 2 || statuses[0].Role != "LEADER" {
		t.Errorf("expected the cluster statuses back, got %+v", statuses)
	}
}

func TestKvEndpoints(t *testing.T) {
	t.Run("GET submits a GET command for the key", func(t *testing.T) {
		cluster := &fakeCluster{result: "1", success: true}

		recorder := serveRequest(cluster, http.MethodGet, "/kv/a", "")

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if cluster.submittedCommand != "GET a" {
			t.Errorf("expected command %q, got %q", "GET a", cluster.submittedCommand)
		}
	})

	t.Run("PUT submits a SET command with the body as value", func(t *testing.T) {
		cluster := &fakeCluster{result: "DONE", success: true}

		recorder := serveRequest(cluster, http.MethodPut, "/kv/a", "42")

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if cluster.submittedCommand != "SET a 42" {
			t.Errorf("expected command %q, got %q", "SET a 42", cluster.submittedCommand)
		}
	})

	t.Run("PUT without a body is a bad request", func(t *testing.T) {
		cluster := &fakeCluster{}

		recorder := serveRequest(cluster, http.MethodPut, "/kv/a", "")

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
		if cluster.submittedCommand != "" {
			t.Errorf("expected no command submitted, got %q", cluster.submittedCommand)
		}
	})

	t.Run("DELETE submits a DEL command for the key", func(t *testing.T) {
		cluster := &fakeCluster{result: "DONE", success: true}

		recorder := serveRequest(cluster, http.MethodDelete, "/kv/a", "")

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if cluster.submittedCommand != "DEL a" {
			t.Errorf("expected command %q, got %q", "DEL a", cluster.submittedCommand)
		}
	})

	t.Run("an unsuccessful command maps to a conflict", func(t *testing.T) {
		cluster := &fakeCluster{result: "leader election in progress - retry", success: false}

		recorder := serveRequest(cluster, http.MethodGet, "/kv/a", "")

		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
	})

	t.Run("a submit error maps to service unavailable", func(t *testing.T) {
		cluster := &fakeCluster{err: errors.New("no response within timeout")}

		recorder := serveRequest(cluster, http.MethodGet, "/kv/a", "")

		if recorder.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", recorder.Code)
		}
	})

	t.Run("healthz answers without touching the cluster", func(t *testing.T) {
		cluster := &fakeCluster{}

		recorder := serveRequest(cluster, http.MethodGet, "/kv/healthz", "")

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if cluster.submittedCommand != "" {
			t.Errorf("expected no command submitted, got %q", cluster.submittedCommand)
		}
	})
}
