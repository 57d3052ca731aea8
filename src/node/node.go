package node

import (
	"fmt"
	"sync/atomic"

	"raftkv/src/config"
	"raftkv/src/logging"
	"raftkv/src/raft_log"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
	"raftkv/src/state_machine"
	"raftkv/src/timer"
)

// Node is one raft cluster participant. It owns its role state, current
// term and log exclusively and mutates them only through Step and Tick,
// which the processing loop serializes - a node is never concurrent with
// itself, so no locks guard its state.
type Node struct {
	id    raft_state.NodeId
	peers []raft_state.NodeId

	currentTerm raft_state.Term
	role        raft_state.RoleState

	log *raft_log.Log

	// Index of highest log entry known to be committed
	commitIndex raft_state.LogEntryIndex
	// Index of highest committed entry already forwarded to the driver
	lastForwarded raft_state.LogEntryIndex

	outbox       chan<- raft_messages.Message
	instructions chan<- state_machine.Instruction
	timeouts     timer.TimeoutSource
	logger       *logging.Logger

	snapshot atomic.Value
}

// CreateNode restores a node from its persisted term and vote and starts
// it as a leaderless follower.
func CreateNode(
	id raft_state.NodeId,
	peers []raft_state.NodeId,
	log *raft_log.Log,
	outbox chan<- raft_messages.Message,
	instructions chan<- state_machine.Instruction,
	timeouts timer.TimeoutSource,
	logger *logging.Logger,
) (*Node, error) {
	term, votedFor, err := log.TermAndVote()
	if err != nil {
		return nil, err
	}

	node := &Node{
		id:           id,
		peers:        peers,
		currentTerm:  term,
		log:          log,
		outbox:       outbox,
		instructions: instructions,
		timeouts:     timeouts,
		logger:       logger,
	}
	node.role = &raft_state.FollowerState{
		Leader:                raft_state.NilLeader,
		VotedFor:              votedFor,
		ElectionTimeout:       timeouts.ElectionTimeout(),
		PendingClientRequests: make(map[string]raft_state.PendingClientRequest),
	}
	node.publishSnapshot()

	return node, nil
}

// StartProcessingLoop feeds the node its two serialized inputs: incoming
// messages and timer ticks. It is the only goroutine that touches node
// state. Invariant violations and storage failures halt the node; network
// loss never surfaces here at all.
func StartProcessingLoop(
	node *Node,
	inbox <-chan raft_messages.Message,
	ticks <-chan struct{},
	quit chan struct{},
) {
	for {
		select {
		case message := <-inbox:
			if err := node.Step(message); err != nil {
				node.logger.Logf("halting: %s", err)
				return
			}
		case <-ticks:
			if err := node.Tick(); err != nil {
				node.logger.Logf("halting: %s", err)
				return
			}
		case <-quit:
			return
		}
	}
}

// Step processes one incoming message.
func (node *Node) Step(message raft_messages.Message) error {
	defer node.publishSnapshot()

	if err := node.observeTerm(message); err != nil {
		return err
	}

	switch payload := message.Payload.(type) {
	case *raft_messages.HeartbeatPayload:
		return node.handleHeartbeat(message, payload)
	case *raft_messages.RequestVotePayload:
		return node.handleRequestVote(message, payload)
	case *raft_messages.RequestVoteResultPayload:
		return node.handleRequestVoteResult(message, payload)
	case *raft_messages.AppendEntriesPayload:
		return node.handleAppendEntries(message, payload)
	case *raft_messages.AppendEntriesResultPayload:
		return node.handleAppendEntriesResult(message, payload)
	case *raft_messages.ClientRequestPayload:
		return node.handleClientRequest(message, payload)
	default:
		node.logger.Logf("ignoring message with unknown payload %s", message.Payload.PayloadTypeString())
		return nil
	}
}

// observeTerm applies the term rule shared by all raft messages: a node
// seeing a strictly higher term steps into it as a leaderless follower.
// If the message also asserts leader authority, the regular follower
// handling adopts that leader in the now-current term.
func (node *Node) observeTerm(message raft_messages.Message) error {
	if message.From.Kind != raft_messages.AddressNode || message.Term <= node.currentTerm {
		return nil
	}

	return node.becomeFollower(message.Term, raft_state.NilLeader)
}

// Tick advances the node's logical clock by one tick. The node never
// sleeps or blocks waiting for a timeout; it only compares elapsed ticks
// to the configured timeout here.
func (node *Node) Tick() error {
	defer node.publishSnapshot()

	if node.lastForwarded < node.commitIndex {
		if err := node.forwardCommitted(); err != nil {
			return err
		}
	}

	switch role := node.role.(type) {
	case *raft_state.FollowerState:
		role.TicksSinceHeartbeat++
		if role.TicksSinceHeartbeat >= role.ElectionTimeout {
			return node.startNewTerm()
		}
	case *raft_state.CandidateState:
		role.ElectionDuration++
		if role.ElectionDuration >= role.ElectionTimeout {
			return node.startNewTerm()
		}
	case *raft_state.LeaderState:
		role.TicksSinceHeartbeat++
		if role.TicksSinceHeartbeat >= config.Config.HeartbeatIntervalTicks {
			role.TicksSinceHeartbeat = 0
			return node.broadcastReplication(role)
		}
	}

	return nil
}

// Id returns the node's cluster identity.
func (node *Node) Id() raft_state.NodeId {
	return node.id
}

// send puts a message on the outbox without ever blocking the processing
// loop. A full outbox behaves like a lossy network: the message is
// dropped and the usual timeout/retry machinery recovers.
func (node *Node) send(to raft_messages.MessageAddress, payload raft_messages.MessagePayload) {
	message := raft_messages.Message{
		Term:    node.currentTerm,
		From:    raft_messages.NodeAddress(node.id),
		To:      to,
		Payload: payload,
	}

	select {
	case node.outbox <- message:
	default:
		node.logger.Logf("outbox full, dropping %s to %s", payload.PayloadTypeString(), to)
	}
}

// forwardCommitted hands newly committed entries to the state machine
// driver, in index order, exactly once. Pending client requests whose
// entry just committed travel along so the driver can answer them.
func (node *Node) forwardCommitted() error {
	for index := node.lastForwarded + 1; index <= node.commitIndex; index++ {
		entry, found, err := node.log.Entry(index)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: committed entry %d missing from log", ErrInvariantViolation, index)
		}

		instruction := state_machine.Instruction{Entry: entry}
		if leader, ok := node.role.(*raft_state.LeaderState); ok {
			for requestId, pending := range leader.PendingRequests {
				if pending.Index == index {
					instruction.RequestId = requestId
					instruction.Client = raft_messages.ClientAddress(pending.ClientId)
					delete(leader.PendingRequests, requestId)
					break
				}
			}
		}

		select {
		case node.instructions <- instruction:
			node.lastForwarded = index
		default:
			// The driver is behind; later entries must wait so forwarding
			// stays in index order. Tick retries until the channel drains.
			node.logger.Logf("instructions channel full, deferring committed entries from %d", index)
			return nil
		}
	}

	return nil
}
