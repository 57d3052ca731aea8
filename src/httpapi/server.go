package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Cluster is the view of a running cluster the HTTP API serves. The API
// is an ordinary client of the replicated state machine: commands it
// submits travel through the message bus like any other client request.
type Cluster interface {
	// NodeStatuses returns one status per node, ordered by node id.
	NodeStatuses() []NodeStatus
	// Submit sends one client command to the cluster and waits for the
	// response, up to the given timeout.
	Submit(command []byte, timeout time.Duration) (result string, success bool, err error)
}

// NodeStatus is the JSON shape of one node's published state.
type NodeStatus struct {
	NodeId       uint8  `json:"node_id"`
	Role         string `json:"role"`
	Term         uint64 `json:"term"`
	VotedFor     int    `json:"voted_for"`
	Leader       int    `json:"leader"`
	CommitIndex  uint64 `json:"commit_index"`
	LastApplied  uint64 `json:"last_applied"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// Serve runs the status/KV API until the listener fails.
func Serve(address string, cluster Cluster) error {
	router := chi.NewRouter()
	registerRoutes(router, cluster)

	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server.ListenAndServe()
}

func registerRoutes(router chi.Router, cluster Cluster) {
	router.Get("/cluster/status", handleStatus(cluster))

	router.Route("/kv", func(router chi.Router) {
		router.Get("/healthz", handleHealthz())
		router.Get("/{key}", handleGet(cluster))
		router.Put("/{key}", handlePut(cluster))
		router.Delete("/{key}", handleDelete(cluster))
	})
}
