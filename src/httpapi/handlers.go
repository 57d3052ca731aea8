package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const submitTimeout = 5 * time.Second

type commandResponse struct {
	Result  string `json:"result"`
	Success bool   `json:"success"`
}

func handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleStatus(cluster Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cluster.NodeStatuses())
	}
}

func handleGet(cluster Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submitCommand(w, cluster, fmt.Sprintf("GET %s", chi.URLParam(r, "key")))
	}
}

func handlePut(cluster Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || len(value) == 0 {
			writeJSON(w, http.StatusBadRequest, commandResponse{Result: "missing value", Success: false})
			return
		}
		submitCommand(w, cluster, fmt.Sprintf("SET %s %s", chi.URLParam(r, "key"), value))
	}
}

func handleDelete(cluster Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submitCommand(w, cluster, fmt.Sprintf("DEL %s", chi.URLParam(r, "key")))
	}
}

func submitCommand(w http.ResponseWriter, cluster Cluster, command string) {
	result, success, err := cluster.Submit([]byte(command), submitTimeout)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, commandResponse{Result: err.Error(), Success: false})
		return
	}

	status := http.StatusOK
	if !success {
		status = http.StatusConflict
	}
	writeJSON(w, status, commandResponse{Result: result, Success: success})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
