package node

import (
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

// handleRequestVoteResult counts granted votes while campaigning. The
// candidate becomes leader the moment votes from a strict majority of the
// cluster (its own included) are in; everything else is ignored as stale.
func (node *Node) handleRequestVoteResult(message raft_messages.Message, payload *raft_messages.RequestVoteResultPayload) error {
	candidate, ok := node.role.(*raft_state.CandidateState)
	if !ok || message.Term != node.currentTerm || !payload.VoteGranted {
		return nil
	}

	candidate.ReceivedVotes[message.From.NodeId] = struct{}{}
	node.logger.Logf("received vote from node %d in term %d (%d/%d)",
		message.From.NodeId, node.currentTerm, len(candidate.ReceivedVotes), node.quorum())

	if uint8(len(candidate.ReceivedVotes)) >= node.quorum() {
		return node.becomeLeader()
	}

	return nil
}
