package raft_state

// Term is the logical election epoch. Terms are exchanged whenever nodes
// communicate and act as a logical clock that lets nodes detect obsolete
// information such as stale leaders. A node's term never decreases.
type Term = uint64

// NodeId is a stable cluster member identity, unique per cluster.
type NodeId = uint8

// Ticks represents a logical clock interval advanced only by the external
// driver ticking the node.
type Ticks = uint8

// LogEntryIndex is a 1-based position in the log. Index 0 means "no entry".
type LogEntryIndex = uint64

// NilVotedFor Constant indicating that given node has not voted yet
const NilVotedFor = -1

// NilLeader Constant indicating that given node doesn't know the current leader
const NilLeader = -1

type LogEntry struct {
	// Index of given log entry
	Index LogEntryIndex
	// Term in which entry was received by leader
	Term Term
	// Command for a state machine
	Command []byte
}

// NodeRole enumerates the raft roles a node can hold.
type NodeRole int

const (
	Follower NodeRole = iota
	Candidate
	Leader
)

func (role NodeRole) String() string {
	switch role {
	case Leader:
		return "LEADER"
	case Candidate:
		return "CANDIDATE"
	default:
		return "FOLLOWER"
	}
}
