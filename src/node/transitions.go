package node

import (
	"errors"
	"fmt"

	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

// ErrInvariantViolation marks a role transition whose precondition does
// not hold. It indicates a bug in the caller or corrupted persisted state,
// never a recoverable runtime condition, so callers must treat it as
// fatal for the node.
var ErrInvariantViolation = errors.New("raft invariant violation")

// startNewTerm increments the current term and campaigns for leadership:
// the node votes for itself, persists the new term together with that
// vote, and broadcasts vote requests to all peers.
//
// Valid from follower (election timeout with no heartbeat) and candidate
// (election timeout with no majority, entering yet another term).
func (node *Node) startNewTerm() error {
	if node.role.Role() == raft_state.Leader {
		return fmt.Errorf("%w: leader cannot campaign for a new term", ErrInvariantViolation)
	}

	newTerm := node.currentTerm + 1
	node.logger.Logf("starting campaign for new term %d", newTerm)

	node.rejectPendingClientRequests("leader election in progress")

	if err := node.log.SetTermAndVote(newTerm, int(node.id)); err != nil {
		return err
	}
	node.currentTerm = newTerm

	role := &raft_state.CandidateState{
		ElectionTimeout: node.timeouts.ElectionTimeout(),
		ReceivedVotes:   map[raft_state.NodeId]struct{}{node.id: {}},
	}
	node.role = role

	// A single-node cluster is its own quorum.
	if uint8(len(role.ReceivedVotes)) >= node.quorum() {
		return node.becomeLeader()
	}

	lastIndex, lastTerm := node.log.LastIndexAndTerm()
	node.send(raft_messages.BroadcastAddress(), &raft_messages.RequestVotePayload{
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	})

	return nil
}

// becomeLeader transitions a candidate that gathered a quorum of votes.
// Replication progress starts optimistically at one past the leader's
// last log index, and an empty append carrying the leader's last entry
// position is broadcast immediately to assert authority. Announcing with
// an append instead of a plain heartbeat makes every follower run its
// log-match check first: a follower holding a divergent suffix must not
// adopt the announced commit index.
func (node *Node) becomeLeader() error {
	candidate, ok := node.role.(*raft_state.CandidateState)
	if !ok {
		return fmt.Errorf("%w: only a candidate can become leader", ErrInvariantViolation)
	}
	if uint8(len(candidate.ReceivedVotes)) < node.quorum() {
		return fmt.Errorf("%w: becoming leader with %d of %d required votes",
			ErrInvariantViolation, len(candidate.ReceivedVotes), node.quorum())
	}

	node.logger.Logf("won election in term %d | becoming leader", node.currentTerm)

	lastIndex, lastTerm := node.log.LastIndexAndTerm()
	role := &raft_state.LeaderState{
		NextIndex:       make(map[raft_state.NodeId]raft_state.LogEntryIndex, len(node.peers)),
		AckedIndex:      make(map[raft_state.NodeId]raft_state.LogEntryIndex, len(node.peers)),
		PendingRequests: make(map[string]raft_state.PendingLeaderRequest),
	}
	for _, peer := range node.peers {
		role.NextIndex[peer] = lastIndex + 1
		role.AckedIndex[peer] = 0
	}
	node.role = role

	node.send(raft_messages.BroadcastAddress(), &raft_messages.AppendEntriesPayload{
		PrevLogIndex: lastIndex,
		PrevLogTerm:  lastTerm,
		CommitIndex:  node.commitIndex,
	})

	return nil
}

// becomeFollower transitions the node into follower state, either behind
// a known leader in the current term or leaderless in a newly discovered
// one. The reason is asserted by the arguments and validated: a term
// regression and a same-term leaderless rediscovery are both programming
// errors, not inputs this operation can act on.
func (node *Node) becomeFollower(term raft_state.Term, leader int) error {
	if term < node.currentTerm {
		return fmt.Errorf("%w: term regression from %d to %d", ErrInvariantViolation, node.currentTerm, term)
	}

	votedFor := raft_state.NilVotedFor
	if leader != raft_state.NilLeader {
		// Lost the election to a peer: remember the winner as both leader
		// and effective vote. Following a leader is only ever possible in
		// the term the node is already in.
		if term != node.currentTerm {
			return fmt.Errorf("%w: cannot follow leader %d in a different term %d", ErrInvariantViolation, leader, term)
		}
		node.logger.Logf("following leader %d in term %d", leader, term)
		votedFor = leader
	} else {
		// A node cannot "discover" the term it is already in.
		if term == node.currentTerm {
			return fmt.Errorf("%w: cannot rediscover current term %d without a leader", ErrInvariantViolation, term)
		}
		node.logger.Logf("discovered new term %d | becoming a leaderless follower", term)
	}

	node.rejectPendingClientRequests("leader changed")

	if err := node.log.SetTermAndVote(term, votedFor); err != nil {
		return err
	}
	node.currentTerm = term

	node.role = &raft_state.FollowerState{
		Leader:                leader,
		VotedFor:              votedFor,
		ElectionTimeout:       node.timeouts.ElectionTimeout(),
		PendingClientRequests: make(map[string]raft_state.PendingClientRequest),
	}

	return nil
}

// rejectPendingClientRequests answers every client request parked while
// the node was a leaderless follower with a retriable failure. Called on
// any leader or term change.
func (node *Node) rejectPendingClientRequests(reason string) {
	follower, ok := node.role.(*raft_state.FollowerState)
	if !ok {
		return
	}

	for requestId, pending := range follower.PendingClientRequests {
		node.send(raft_messages.ClientAddress(pending.ClientId), &raft_messages.ResponseToClientPayload{
			RequestId: requestId,
			Result:    fmt.Sprintf("%s - retry", reason),
			Success:   false,
		})
		delete(follower.PendingClientRequests, requestId)
	}
}
