package node

import (
	"raftkv/src/config"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

// broadcastReplication sends each peer whatever it needs next: pending
// entries starting at the peer's next index, a probing empty append while
// the match point is still unknown, or a plain heartbeat once the peer is
// verified to be fully caught up.
func (node *Node) broadcastReplication(leader *raft_state.LeaderState) error {
	for _, peer := range node.peers {
		if err := node.replicateToPeer(leader, peer); err != nil {
			return err
		}
	}

	return nil
}

func (node *Node) replicateToPeer(leader *raft_state.LeaderState, peer raft_state.NodeId) error {
	lastIndex, _ := node.log.LastIndexAndTerm()
	nextIndex := leader.NextIndex[peer]

	if nextIndex > lastIndex && leader.AckedIndex[peer] == lastIndex {
		node.send(raft_messages.NodeAddress(peer), &raft_messages.HeartbeatPayload{
			CommitIndex: node.commitIndex,
		})
		return nil
	}

	prevIndex := nextIndex - 1
	prevTerm := raft_state.Term(0)
	if prevIndex > 0 {
		prevEntry, found, err := node.log.Entry(prevIndex)
		if err != nil {
			return err
		}
		if found {
			prevTerm = prevEntry.Term
		}
	}

	entries, err := node.log.Entries(nextIndex, config.Config.MaxEntriesPerAppend)
	if err != nil {
		return err
	}

	node.send(raft_messages.NodeAddress(peer), &raft_messages.AppendEntriesPayload{
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		CommitIndex:  node.commitIndex,
	})

	return nil
}

// handleAppendEntriesResult advances a peer's replication progress on
// success and walks its next index back one entry on conflict, resending
// immediately. Conflicting peers are retried indefinitely until they
// catch up or this leader is deposed.
func (node *Node) handleAppendEntriesResult(message raft_messages.Message, payload *raft_messages.AppendEntriesResultPayload) error {
	leader, ok := node.role.(*raft_state.LeaderState)
	if !ok || message.Term != node.currentTerm {
		return nil
	}

	peer := message.From.NodeId

	if !payload.Success {
		if leader.NextIndex[peer] > 1 {
			leader.NextIndex[peer]--
		}
		return node.replicateToPeer(leader, peer)
	}

	if payload.LastMatchedIndex > leader.AckedIndex[peer] {
		leader.AckedIndex[peer] = payload.LastMatchedIndex
	}
	if leader.AckedIndex[peer]+1 > leader.NextIndex[peer] {
		leader.NextIndex[peer] = leader.AckedIndex[peer] + 1
	}

	return node.advanceLeaderCommitIndex(leader)
}

// advanceLeaderCommitIndex moves the commit index to the highest log
// index replicated to a quorum whose entry was appended in the current
// term. Entries from earlier terms are never committed by counting
// replicas alone; they commit only as the prefix of a current-term entry.
func (node *Node) advanceLeaderCommitIndex(leader *raft_state.LeaderState) error {
	lastIndex, _ := node.log.LastIndexAndTerm()

	for index := lastIndex; index > node.commitIndex; index-- {
		acks := uint8(1) // the leader's own log counts
		for _, peer := range node.peers {
			if leader.AckedIndex[peer] >= index {
				acks++
			}
		}
		if acks < node.quorum() {
			continue
		}

		entry, found, err := node.log.Entry(index)
		if err != nil {
			return err
		}
		if !found || entry.Term != node.currentTerm {
			continue
		}

		node.logger.Logf("commit index advanced to %d in term %d", index, node.currentTerm)
		return node.advanceCommitIndex(index)
	}

	return nil
}
