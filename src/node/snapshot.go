package node

import (
	"raftkv/src/raft_state"
)

const snapshotLogTailLength = 8

// Snapshot is a read-only view of a node's state, published atomically
// after every processed input so the playground UI and the HTTP API can
// observe nodes without touching their state.
type Snapshot struct {
	NodeId       raft_state.NodeId
	Role         raft_state.NodeRole
	Term         raft_state.Term
	VotedFor     int
	Leader       int
	CommitIndex  raft_state.LogEntryIndex
	LastLogIndex raft_state.LogEntryIndex
	LastLogTerm  raft_state.Term
	// Votes gathered so far, only meaningful while campaigning
	ReceivedVotes int
	// Most recent log entries, newest last
	LogTail []raft_state.LogEntry
}

// Snapshot returns the most recently published view. Safe to call from
// any goroutine.
func (node *Node) Snapshot() Snapshot {
	return node.snapshot.Load().(Snapshot)
}

func (node *Node) publishSnapshot() {
	lastIndex, lastTerm := node.log.LastIndexAndTerm()

	snapshot := Snapshot{
		NodeId:       node.id,
		Role:         node.role.Role(),
		Term:         node.currentTerm,
		VotedFor:     raft_state.NilVotedFor,
		Leader:       raft_state.NilLeader,
		CommitIndex:  node.commitIndex,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}

	switch role := node.role.(type) {
	case *raft_state.FollowerState:
		snapshot.VotedFor = role.VotedFor
		snapshot.Leader = role.Leader
	case *raft_state.CandidateState:
		snapshot.VotedFor = int(node.id)
		snapshot.ReceivedVotes = len(role.ReceivedVotes)
	case *raft_state.LeaderState:
		snapshot.VotedFor = int(node.id)
		snapshot.Leader = int(node.id)
	}

	tailStart := raft_state.LogEntryIndex(1)
	if lastIndex > snapshotLogTailLength {
		tailStart = lastIndex - snapshotLogTailLength + 1
	}
	if tail, err := node.log.Entries(tailStart, snapshotLogTailLength); err == nil {
		snapshot.LogTail = tail
	}

	node.snapshot.Store(snapshot)
}
