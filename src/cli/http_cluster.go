package cli

import (
	"fmt"
	"sync/atomic"
	"time"

	"raftkv/src/httpapi"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

var httpRequestCounter uint64

// httpCluster adapts the playground cluster to the HTTP API. Each request
// registers a throwaway client on the bus, so concurrent HTTP calls never
// steal each other's responses.
type httpCluster struct {
	context *appContext
}

func (cluster *httpCluster) NodeStatuses() []httpapi.NodeStatus {
	views := cluster.context.nodeViews()

	statuses := make([]httpapi.NodeStatus, 0, len(views))
	for _, view := range views {
		snapshot := view.snapshot
		statuses = append(statuses, httpapi.NodeStatus{
			NodeId:       snapshot.NodeId,
			Role:         snapshot.Role.String(),
			Term:         snapshot.Term,
			VotedFor:     snapshot.VotedFor,
			Leader:       snapshot.Leader,
			CommitIndex:  snapshot.CommitIndex,
			LastApplied:  view.lastApplied,
			LastLogIndex: snapshot.LastLogIndex,
			LastLogTerm:  snapshot.LastLogTerm,
		})
	}

	return statuses
}

func (cluster *httpCluster) Submit(command []byte, timeout time.Duration) (string, bool, error) {
	sequence := atomic.AddUint64(&httpRequestCounter, 1)
	clientId := fmt.Sprintf("http-%d", sequence)
	requestId := fmt.Sprintf("%s-req", clientId)

	responses := cluster.context.networkController.RegisterClient(clientId)
	defer cluster.context.networkController.UnregisterClient(clientId)

	if !cluster.context.networkController.SendFromClient(clientId, cluster.pickNode(), requestId, command) {
		return "", false, fmt.Errorf("no node reachable")
	}

	deadline := time.After(timeout)
	for {
		select {
		case message := <-responses:
			response, ok := message.Payload.(*raft_messages.ResponseToClientPayload)
			if !ok || response.RequestId != requestId {
				continue
			}
			return response.Result, response.Success, nil
		case <-deadline:
			return "", false, fmt.Errorf("timed out waiting for cluster response")
		}
	}
}

// pickNode prefers the current leader to spare a forwarding hop.
func (cluster *httpCluster) pickNode() raft_state.NodeId {
	views := cluster.context.nodeViews()

	for _, view := range views {
		if view.snapshot.Role == raft_state.Leader {
			return view.snapshot.NodeId
		}
	}

	return views[0].snapshot.NodeId
}
