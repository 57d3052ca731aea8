package node

import (
	"fmt"

	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
	"raftkv/src/state_machine"
)

// handleClientRequest routes one client command. The leader appends it to
// the log and answers once the entry commits; a follower forwards to the
// leader it knows, or parks the request while leaderless; a candidate
// rejects outright since the cluster is mid-election.
func (node *Node) handleClientRequest(message raft_messages.Message, payload *raft_messages.ClientRequestPayload) error {
	if message.From.Kind != raft_messages.AddressClient {
		node.logger.Logf("ignoring client request from non-client address %s", message.From)
		return nil
	}

	if !state_machine.IsValidCommand(payload.Command) {
		node.send(message.From, &raft_messages.ResponseToClientPayload{
			RequestId: payload.RequestId,
			Result:    fmt.Sprintf("'%s' - invalid command", payload.Command),
			Success:   false,
		})
		return nil
	}

	switch role := node.role.(type) {
	case *raft_state.LeaderState:
		return node.acceptClientRequest(role, message, payload)
	case *raft_state.FollowerState:
		if role.Leader != raft_state.NilLeader {
			node.forwardToLeader(raft_state.NodeId(role.Leader), message.From, payload)
			return nil
		}
		role.PendingClientRequests[payload.RequestId] = raft_state.PendingClientRequest{
			ClientId: message.From.ClientId,
			Command:  payload.Command,
		}
		return nil
	default:
		node.send(message.From, &raft_messages.ResponseToClientPayload{
			RequestId: payload.RequestId,
			Result:    "leader election in progress - retry",
			Success:   false,
		})
		return nil
	}
}

// acceptClientRequest appends the command to the leader's log and tracks
// the request until the entry commits. Replication to peers starts
// immediately instead of waiting for the next heartbeat tick.
func (node *Node) acceptClientRequest(
	leader *raft_state.LeaderState,
	message raft_messages.Message,
	payload *raft_messages.ClientRequestPayload,
) error {
	entry, err := node.log.Append(node.currentTerm, payload.Command)
	if err != nil {
		return err
	}

	leader.PendingRequests[payload.RequestId] = raft_state.PendingLeaderRequest{
		ClientId: message.From.ClientId,
		Index:    entry.Index,
	}
	node.logger.Logf("appended entry %d for client request %s", entry.Index, payload.RequestId)

	if err := node.broadcastReplication(leader); err != nil {
		return err
	}

	// In a single-node cluster the leader's own log is already a quorum.
	return node.advanceLeaderCommitIndex(leader)
}

// forwardToLeader readdresses a client request to the known leader. The
// original client stays in the From field, so the leader answers the
// client directly.
func (node *Node) forwardToLeader(
	leader raft_state.NodeId,
	client raft_messages.MessageAddress,
	payload *raft_messages.ClientRequestPayload,
) {
	node.logger.Logf("forwarding client request %s to leader %d", payload.RequestId, leader)

	message := raft_messages.Message{
		Term:    node.currentTerm,
		From:    client,
		To:      raft_messages.NodeAddress(leader),
		Payload: payload,
	}

	select {
	case node.outbox <- message:
	default:
		node.logger.Logf("outbox full, dropping forwarded client request %s", payload.RequestId)
	}
}

// forwardPendingClientRequests drains the requests parked while leaderless
// to the leader just learned.
func (node *Node) forwardPendingClientRequests(follower *raft_state.FollowerState) {
	if follower.Leader == raft_state.NilLeader {
		return
	}

	for requestId, pending := range follower.PendingClientRequests {
		node.forwardToLeader(raft_state.NodeId(follower.Leader), raft_messages.ClientAddress(pending.ClientId), &raft_messages.ClientRequestPayload{
			RequestId: requestId,
			Command:   pending.Command,
		})
		delete(follower.PendingClientRequests, requestId)
	}
}
