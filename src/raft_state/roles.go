package raft_state

// RoleState is the state owned by exactly one of the three roles. A node
// holds a single RoleState value at a time and replaces it atomically on
// every role transition.
type RoleState interface {
	Role() NodeRole
}

// PendingClientRequest is a client request parked at a follower while the
// leader is unknown. Parked requests are forwarded once a leader appears
// and rejected on term change so clients retry.
type PendingClientRequest struct {
	ClientId string
	Command  []byte
}

// PendingLeaderRequest tracks a client request accepted by the leader,
// answered once the entry appended for it commits.
type PendingLeaderRequest struct {
	ClientId string
	// Index of the log entry appended for this request
	Index LogEntryIndex
}

// FollowerState struct for state kept while the node passively replicates
// from the leader.
//
// When nodes start up, they begin as followers. A node remains a follower
// as long as it receives valid messages from a leader or candidate. If a
// follower receives no communication over the election timeout, it assumes
// there is no viable leader and begins an election.
type FollowerState struct {
	// Id of current leader (NilLeader if unknown)
	Leader int
	// Id of candidate that received this node's vote in the current term
	// (NilVotedFor if none)
	VotedFor int
	// Ticks elapsed since the leader last asserted its authority
	TicksSinceHeartbeat Ticks
	// Randomized election timeout, re-drawn on every transition to follower
	ElectionTimeout Ticks
	// Client requests sent directly to this node while the leader was
	// unknown, keyed by request id
	PendingClientRequests map[string]PendingClientRequest
}

func (*FollowerState) Role() NodeRole { return Follower }

// CandidateState struct for state kept while an election is in progress.
//
// A candidate remains in this state until it wins the election, another
// node establishes itself as leader, or a period of time goes by with no
// winner.
type CandidateState struct {
	// Ticks elapsed since the election started
	ElectionDuration Ticks
	// Randomized election timeout, re-drawn at the start of every election
	ElectionTimeout Ticks
	// Nodes that granted their vote in this term, self included
	ReceivedVotes map[NodeId]struct{}
}

func (*CandidateState) Role() NodeRole { return Candidate }

// LeaderState struct for state kept only on the leader, reinitialized
// after every election.
type LeaderState struct {
	// Index of the next log entry to send to a given peer
	NextIndex map[NodeId]LogEntryIndex
	// Index of highest log entry known to be replicated on a given peer
	AckedIndex map[NodeId]LogEntryIndex
	// Ticks elapsed since the last replication broadcast
	TicksSinceHeartbeat Ticks
	// Client requests awaiting commit of their log entry, keyed by
	// request id
	PendingRequests map[string]PendingLeaderRequest
}

func (*LeaderState) Role() NodeRole { return Leader }
