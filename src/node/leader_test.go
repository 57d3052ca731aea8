package node

import (
	"testing"

	"github.com/go-test/deep"

	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

func TestLeaderReplication(t *testing.T) {
	appendEntriesTo := func(t *testing.T, messages []raft_messages.Message, peer raft_state.NodeId) *raft_messages.AppendEntriesPayload {
		t.Helper()
		for _, message := range messages {
			if message.To.Kind != raft_messages.AddressNode || message.To.NodeId != peer {
				continue
			}
			if payload, ok := message.Payload.(*raft_messages.AppendEntriesPayload); ok {
				return payload
			}
		}
		t.Fatalf("expected an append entries message to node %d", peer)
		return nil
	}

	t.Run("commits a client command once a quorum acknowledges it", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.becomeTestLeader(t)

		test.step(t, clientMessage("client-a", "req-1", "SET a 1"))
		test.drainOutbox()

		term := test.node.Snapshot().Term
		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 1}))

		if commitIndex := test.node.Snapshot().CommitIndex; commitIndex != 0 {
			t.Fatalf("expected no commit at 2 of 3 required replicas, got commit index %d", commitIndex)
		}

		test.step(t, nodeMessage(3, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 1}))

		if commitIndex := test.node.Snapshot().CommitIndex; commitIndex != 1 {
			t.Fatalf("expected commit index 1 after quorum, got %d", commitIndex)
		}

		instructions := test.drainInstructions()
		if len(instructions) != 1 {
			t.Fatalf("expected 1 instruction, got %d", len(instructions))
		}
		if instructions[0].RequestId != "req-1" {
			t.Errorf("expected instruction tagged with request req-1, got %q", instructions[0].RequestId)
		}
		if instructions[0].Client.ClientId != "client-a" {
			t.Errorf("expected instruction addressed to client-a, got %s", instructions[0].Client)
		}
		if diff := deep.Equal(instructions[0].Entry.Command, []byte("SET a 1")); diff != nil {
			t.Errorf("expected committed command to match, got the following differences %s", diff)
		}
	})

	t.Run("replicates the appended entry to every peer immediately", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.becomeTestLeader(t)

		test.step(t, clientMessage("client-a", "req-1", "SET a 1"))

		messages := test.drainOutbox()
		for _, peer := range []raft_state.NodeId{2, 3, 4, 5} {
			payload := appendEntriesTo(t, messages, peer)
			if len(payload.Entries) != 1 || payload.Entries[0].Index != 1 {
				t.Errorf("expected node %d to receive entry 1, got %v", peer, payload.Entries)
			}
			if payload.PrevLogIndex != 0 {
				t.Errorf("expected prev log index 0 for node %d, got %d", peer, payload.PrevLogIndex)
			}
		}
	})

	t.Run("walks a conflicting peer backwards one entry at a time", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{
			persistedTerm: 1,
			logEntries: []raft_state.LogEntry{
				{Index: 1, Term: 1, Command: []byte("SET a 1")},
				{Index: 2, Term: 1, Command: []byte("SET b 2")},
			},
		})
		test.becomeTestLeader(t)

		term := test.node.Snapshot().Term
		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: false}))

		payload := appendEntriesTo(t, test.drainOutbox(), 2)
		if payload.PrevLogIndex != 1 {
			t.Fatalf("expected retry with prev log index 1, got %d", payload.PrevLogIndex)
		}
		if payload.PrevLogTerm != 1 {
			t.Errorf("expected prev log term 1, got %d", payload.PrevLogTerm)
		}

		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: false}))

		payload = appendEntriesTo(t, test.drainOutbox(), 2)
		if payload.PrevLogIndex != 0 {
			t.Fatalf("expected retry from the log start, got prev log index %d", payload.PrevLogIndex)
		}
		if len(payload.Entries) != 2 {
			t.Errorf("expected both entries resent, got %d", len(payload.Entries))
		}
	})

	t.Run("sends plain heartbeats only to fully caught up peers", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.becomeTestLeader(t)

		test.step(t, clientMessage("client-a", "req-1", "SET a 1"))
		test.drainOutbox()

		term := test.node.Snapshot().Term
		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 1}))
		test.drainOutbox()

		test.tick(t, 3)

		heartbeats := map[raft_state.NodeId]bool{}
		appends := map[raft_state.NodeId]bool{}
		for _, message := range test.drainOutbox() {
			if message.To.Kind != raft_messages.AddressNode {
				continue
			}
			switch message.Payload.(type) {
			case *raft_messages.HeartbeatPayload:
				heartbeats[message.To.NodeId] = true
			case *raft_messages.AppendEntriesPayload:
				appends[message.To.NodeId] = true
			}
		}

		if !heartbeats[2] {
			t.Errorf("expected a heartbeat to the caught up node 2")
		}
		for _, peer := range []raft_state.NodeId{3, 4, 5} {
			if heartbeats[peer] {
				t.Errorf("expected no plain heartbeat to the unverified node %d", peer)
			}
			if !appends[peer] {
				t.Errorf("expected an append entries message to node %d", peer)
			}
		}
	})

	t.Run("does not commit an earlier-term entry by counting replicas", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{
			persistedTerm: 1,
			logEntries:    []raft_state.LogEntry{{Index: 1, Term: 1, Command: []byte("SET a 1")}},
			timeouts:      []raft_state.Ticks{3},
		})
		test.becomeTestLeader(t)

		term := test.node.Snapshot().Term
		if term != 2 {
			t.Fatalf("expected leadership in term 2, got %d", term)
		}

		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 1}))
		test.step(t, nodeMessage(3, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 1}))

		if commitIndex := test.node.Snapshot().CommitIndex; commitIndex != 0 {
			t.Fatalf("expected the term 1 entry to stay uncommitted, got commit index %d", commitIndex)
		}

		test.step(t, clientMessage("client-a", "req-1", "SET b 2"))
		test.drainOutbox()
		test.step(t, nodeMessage(2, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 2}))
		test.step(t, nodeMessage(3, term, &raft_messages.AppendEntriesResultPayload{Success: true, LastMatchedIndex: 2}))

		if commitIndex := test.node.Snapshot().CommitIndex; commitIndex != 2 {
			t.Fatalf("expected both entries committed behind the term 2 entry, got commit index %d", commitIndex)
		}
		if instructions := test.drainInstructions(); len(instructions) != 2 {
			t.Errorf("expected 2 forwarded instructions, got %d", len(instructions))
		}
	})

	t.Run("steps down on an append result carrying a higher term", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.becomeTestLeader(t)

		term := test.node.Snapshot().Term
		test.step(t, nodeMessage(2, term+1, &raft_messages.AppendEntriesResultPayload{Success: false}))

		snapshot := test.node.Snapshot()
		if snapshot.Role != raft_state.Follower {
			t.Fatalf("expected leader to step down, got %s", snapshot.Role)
		}
		if snapshot.Term != term+1 {
			t.Errorf("expected term %d, got %d", term+1, snapshot.Term)
		}
		if snapshot.Leader != raft_state.NilLeader {
			t.Errorf("expected a leaderless follower, got leader %d", snapshot.Leader)
		}
	})

	t.Run("a single-node leader commits its own appends", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{peers: []raft_state.NodeId{}, timeouts: []raft_state.Ticks{2}})

		test.tick(t, 2)
		if role := test.node.Snapshot().Role; role != raft_state.Leader {
			t.Fatalf("expected a lone node to lead, got %s", role)
		}

		test.step(t, clientMessage("client-a", "req-1", "SET a 1"))

		if commitIndex := test.node.Snapshot().CommitIndex; commitIndex != 1 {
			t.Fatalf("expected immediate commit, got commit index %d", commitIndex)
		}
	})
}

func TestClientRequestRouting(t *testing.T) {
	t.Run("rejects a malformed command without touching the log", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.becomeTestLeader(t)

		test.step(t, clientMessage("client-a", "req-1", "FROB a"))

		messages := test.drainOutbox()
		if len(messages) != 1 {
			t.Fatalf("expected a single rejection, got %d messages", len(messages))
		}
		payload, ok := messages[0].Payload.(*raft_messages.ResponseToClientPayload)
		if !ok || payload.Success {
			t.Fatalf("expected a failed client response")
		}
		if lastIndex, _ := test.log.LastIndexAndTerm(); lastIndex != 0 {
			t.Errorf("expected the log to stay empty, got last index %d", lastIndex)
		}
	})

	t.Run("a follower forwards client requests to its leader", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.step(t, nodeMessage(2, 1, &raft_messages.HeartbeatPayload{}))
		test.drainOutbox()

		test.step(t, clientMessage("client-a", "req-1", "GET a"))

		messages := test.drainOutbox()
		if len(messages) != 1 {
			t.Fatalf("expected a single forwarded message, got %d", len(messages))
		}
		forwarded := messages[0]
		if forwarded.To.Kind != raft_messages.AddressNode || forwarded.To.NodeId != 2 {
			t.Errorf("expected forward to leader 2, got %s", forwarded.To)
		}
		if forwarded.From.Kind != raft_messages.AddressClient || forwarded.From.ClientId != "client-a" {
			t.Errorf("expected the client kept as sender, got %s", forwarded.From)
		}
	})

	t.Run("a leaderless follower parks requests until a leader emerges", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{timeouts: []raft_state.Ticks{10}})

		test.step(t, clientMessage("client-a", "req-1", "GET a"))
		if messages := test.drainOutbox(); len(messages) != 0 {
			t.Fatalf("expected the request to be parked, got %d messages", len(messages))
		}

		test.step(t, nodeMessage(2, 0, &raft_messages.HeartbeatPayload{}))

		messages := test.drainOutbox()
		forwarded := false
		for _, message := range messages {
			if message.To.Kind == raft_messages.AddressNode && message.To.NodeId == 2 {
				if payload, ok := message.Payload.(*raft_messages.ClientRequestPayload); ok && payload.RequestId == "req-1" {
					forwarded = true
				}
			}
		}
		if !forwarded {
			t.Errorf("expected the parked request forwarded to the new leader")
		}
	})

	t.Run("a leaderless follower fails parked requests on a term change", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{timeouts: []raft_state.Ticks{10}})

		test.step(t, clientMessage("client-a", "req-1", "GET a"))
		test.step(t, nodeMessage(3, 2, &raft_messages.RequestVotePayload{}))

		var response *raft_messages.ResponseToClientPayload
		for _, message := range test.drainOutbox() {
			if payload, ok := message.Payload.(*raft_messages.ResponseToClientPayload); ok {
				response = payload
			}
		}
		if response == nil {
			t.Fatalf("expected a client response for the parked request")
		}
		if response.Success {
			t.Errorf("expected the parked request to fail")
		}
		if response.RequestId != "req-1" {
			t.Errorf("expected response for req-1, got %q", response.RequestId)
		}
	})

	t.Run("a candidate rejects client requests outright", func(t *testing.T) {
		test := createTestNode(t, testNodeOptions{})
		test.tick(t, 3)
		test.drainOutbox()

		test.step(t, clientMessage("client-a", "req-1", "GET a"))

		messages := test.drainOutbox()
		if len(messages) != 1 {
			t.Fatalf("expected a single rejection, got %d messages", len(messages))
		}
		payload, ok := messages[0].Payload.(*raft_messages.ResponseToClientPayload)
		if !ok || payload.Success {
			t.Fatalf("expected a failed client response")
		}
	})
}
