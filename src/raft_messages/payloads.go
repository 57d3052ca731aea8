package raft_messages

import (
	"fmt"

	"raftkv/src/raft_state"
)

type PayloadType int

const (
	Heartbeat PayloadType = iota
	RequestVote
	RequestVoteResult
	AppendEntries
	AppendEntriesResult
	ClientRequest
	ResponseToClient
)

type MessagePayload interface {
	// PayloadType returns type of given payload
	PayloadType() PayloadType
	// PayloadTypeString returns type of given payload as string
	PayloadTypeString() string
}

// HeartbeatPayload is the periodic empty append a leader broadcasts to
// assert its authority and propagate the commit index.
type HeartbeatPayload struct {
	// Leader's commit index
	CommitIndex raft_state.LogEntryIndex
}

func (*HeartbeatPayload) PayloadType() PayloadType  { return Heartbeat }
func (*HeartbeatPayload) PayloadTypeString() string { return "Heartbeat" }

// RequestVotePayload is broadcast by a candidate campaigning for
// leadership. The last log index and term let voters refuse candidates
// whose log is behind their own.
type RequestVotePayload struct {
	// Index of candidate's last log entry
	LastLogIndex raft_state.LogEntryIndex
	// Term of candidate's last log entry
	LastLogTerm raft_state.Term
}

func (*RequestVotePayload) PayloadType() PayloadType  { return RequestVote }
func (*RequestVotePayload) PayloadTypeString() string { return "RequestVote" }

// RequestVoteResultPayload answers a vote request. The responder's current
// term travels on the message envelope.
type RequestVoteResultPayload struct {
	VoteGranted bool
}

func (*RequestVoteResultPayload) PayloadType() PayloadType  { return RequestVoteResult }
func (*RequestVoteResultPayload) PayloadTypeString() string { return "RequestVoteResult" }

// AppendEntriesPayload is sent by the leader to replicate log entries.
type AppendEntriesPayload struct {
	// Index of log entry immediately preceding the new ones
	PrevLogIndex raft_state.LogEntryIndex
	// Term of PrevLogIndex entry
	PrevLogTerm raft_state.Term
	// Entries to store
	Entries []raft_state.LogEntry
	// Leader's commit index
	CommitIndex raft_state.LogEntryIndex
}

func (*AppendEntriesPayload) PayloadType() PayloadType  { return AppendEntries }
func (*AppendEntriesPayload) PayloadTypeString() string { return "AppendEntries" }

// AppendEntriesResultPayload reports whether a follower appended the
// entries; LastMatchedIndex is the highest index on which the follower's
// log now matches the leader's.
type AppendEntriesResultPayload struct {
	Success bool
	// Highest log index known to match the leader's log
	LastMatchedIndex raft_state.LogEntryIndex
}

func (*AppendEntriesResultPayload) PayloadType() PayloadType  { return AppendEntriesResult }
func (*AppendEntriesResultPayload) PayloadTypeString() string { return "AppendEntriesResult" }

// ClientRequestPayload carries one state machine command from a client.
type ClientRequestPayload struct {
	// Client-chosen id correlating the eventual response
	RequestId string
	Command   []byte
}

func (*ClientRequestPayload) PayloadType() PayloadType  { return ClientRequest }
func (*ClientRequestPayload) PayloadTypeString() string { return "ClientRequest" }

// ResponseToClientPayload answers a client request.
type ResponseToClientPayload struct {
	RequestId string
	Result    string
	Success   bool
}

func (*ResponseToClientPayload) PayloadType() PayloadType  { return ResponseToClient }
func (*ResponseToClientPayload) PayloadTypeString() string { return "ResponseToClient" }

// PayloadSummary renders a payload for the playground logs.
func PayloadSummary(payload MessagePayload) string {
	switch p := payload.(type) {
	case *HeartbeatPayload:
		return fmt.Sprintf("Heartbeat(Commit: %d)", p.CommitIndex)
	case *RequestVotePayload:
		return fmt.Sprintf("RequestVote(LastLogIndex: %d LastLogTerm: %d)", p.LastLogIndex, p.LastLogTerm)
	case *RequestVoteResultPayload:
		return fmt.Sprintf("RequestVoteResult(Granted: %t)", p.VoteGranted)
	case *AppendEntriesPayload:
		return fmt.Sprintf("AppendEntries(PrevLogIndex: %d PrevLogTerm: %d Entries: %d Commit: %d)",
			p.PrevLogIndex, p.PrevLogTerm, len(p.Entries), p.CommitIndex)
	case *AppendEntriesResultPayload:
		return fmt.Sprintf("AppendEntriesResult(Success: %t LastMatched: %d)", p.Success, p.LastMatchedIndex)
	case *ClientRequestPayload:
		return fmt.Sprintf("ClientRequest(Id: %s Command: '%s')", p.RequestId, p.Command)
	case *ResponseToClientPayload:
		return fmt.Sprintf("ResponseToClient(Id: %s Success: %t Result: '%s')", p.RequestId, p.Success, p.Result)
	default:
		return payload.PayloadTypeString()
	}
}
