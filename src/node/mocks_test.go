package node

import (
	"testing"

	"raftkv/src/logging"
	"raftkv/src/raft_log"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
	"raftkv/src/state_machine"
	"raftkv/src/storage"
)

// sequenceTimeoutSource returns preset timeouts in order and records how
// many were drawn, so tests can assert that a fresh timeout is taken on
// every transition into candidate or follower.
type sequenceTimeoutSource struct {
	timeouts []raft_state.Ticks
	drawn    int
}

func (source *sequenceTimeoutSource) ElectionTimeout() raft_state.Ticks {
	timeout := source.timeouts[len(source.timeouts)-1]
	if source.drawn < len(source.timeouts) {
		timeout = source.timeouts[source.drawn]
	}
	source.drawn++
	return timeout
}

type testNode struct {
	node         *Node
	log          *raft_log.Log
	engine       *storage.MemoryEngine
	outbox       chan raft_messages.Message
	instructions chan state_machine.Instruction
	timeouts     *sequenceTimeoutSource
}

type testNodeOptions struct {
	peers         []raft_state.NodeId
	timeouts      []raft_state.Ticks
	persistedTerm raft_state.Term
	persistedVote int
	logEntries    []raft_state.LogEntry
}

func createTestNode(t *testing.T, options testNodeOptions) *testNode {
	t.Helper()

	if options.peers == nil {
		options.peers = []raft_state.NodeId{2, 3, 4, 5}
	}
	if options.timeouts == nil {
		options.timeouts = []raft_state.Ticks{3}
	}
	if options.persistedVote == 0 {
		options.persistedVote = raft_state.NilVotedFor
	}

	engine := storage.CreateMemoryEngine()
	log, err := raft_log.OpenLog(engine)
	if err != nil {
		t.Fatalf("opening log: %s", err)
	}

	if options.persistedTerm > 0 || options.persistedVote != raft_state.NilVotedFor {
		if err := log.SetTermAndVote(options.persistedTerm, options.persistedVote); err != nil {
			t.Fatalf("persisting term and vote: %s", err)
		}
	}
	for _, entry := range options.logEntries {
		if err := log.AppendReplicated(entry); err != nil {
			t.Fatalf("seeding log entry %d: %s", entry.Index, err)
		}
	}

	outbox := make(chan raft_messages.Message, 100)
	instructions := make(chan state_machine.Instruction, 100)
	timeouts := &sequenceTimeoutSource{timeouts: options.timeouts}
	logger := logging.CreateLogger("[TEST]", make(chan logging.LoggerEntry, 100))

	n, err := CreateNode(1, options.peers, log, outbox, instructions, timeouts, logger)
	if err != nil {
		t.Fatalf("creating node: %s", err)
	}

	return &testNode{
		node:         n,
		log:          log,
		engine:       engine,
		outbox:       outbox,
		instructions: instructions,
		timeouts:     timeouts,
	}
}

func (test *testNode) tick(t *testing.T, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := test.node.Tick(); err != nil {
			t.Fatalf("tick failed: %s", err)
		}
	}
}

func (test *testNode) step(t *testing.T, message raft_messages.Message) {
	t.Helper()
	if err := test.node.Step(message); err != nil {
		t.Fatalf("step failed: %s", err)
	}
}

func (test *testNode) drainOutbox() []raft_messages.Message {
	var messages []raft_messages.Message
	for {
		select {
		case message := <-test.outbox:
			messages = append(messages, message)
		default:
			return messages
		}
	}
}

func (test *testNode) drainInstructions() []state_machine.Instruction {
	var instructions []state_machine.Instruction
	for {
		select {
		case instruction := <-test.instructions:
			instructions = append(instructions, instruction)
		default:
			return instructions
		}
	}
}

func nodeMessage(from raft_state.NodeId, term raft_state.Term, payload raft_messages.MessagePayload) raft_messages.Message {
	return raft_messages.Message{
		Term:    term,
		From:    raft_messages.NodeAddress(from),
		To:      raft_messages.NodeAddress(1),
		Payload: payload,
	}
}

func clientMessage(clientId string, requestId string, command string) raft_messages.Message {
	return raft_messages.Message{
		From: raft_messages.ClientAddress(clientId),
		To:   raft_messages.NodeAddress(1),
		Payload: &raft_messages.ClientRequestPayload{
			RequestId: requestId,
			Command:   []byte(command),
		},
	}
}

// becomeTestLeader walks the node through a clean election: election
// timeout, vote broadcast, quorum of grants.
func (test *testNode) becomeTestLeader(t *testing.T) {
	t.Helper()

	timeout := test.timeouts.timeouts[0]
	test.tick(t, int(timeout))
	if test.node.Snapshot().Role != raft_state.Candidate {
		t.Fatalf("expected node to campaign after %d ticks", timeout)
	}

	term := test.node.Snapshot().Term
	test.step(t, nodeMessage(2, term, &raft_messages.RequestVoteResultPayload{VoteGranted: true}))
	test.step(t, nodeMessage(3, term, &raft_messages.RequestVoteResultPayload{VoteGranted: true}))

	if test.node.Snapshot().Role != raft_state.Leader {
		t.Fatalf("expected node to become leader after quorum of votes")
	}
	test.drainOutbox()
}
