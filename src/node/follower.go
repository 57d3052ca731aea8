package node

import (
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

// handleHeartbeat processes a leader's authority assertion. Valid leader
// messages (term >= ours) reset the follower's election clock; the commit
// index piggybacked on the heartbeat is adopted up to the last stored
// entry. Leaders send plain heartbeats only to peers whose entire log
// they have verified as matching; any unverified peer gets an append
// (possibly empty) whose prev-entry check gates commit adoption.
func (node *Node) handleHeartbeat(message raft_messages.Message, payload *raft_messages.HeartbeatPayload) error {
	if message.Term < node.currentTerm {
		node.send(message.From, &raft_messages.AppendEntriesResultPayload{Success: false})
		return nil
	}

	follower, err := node.followLeaderMessage(message)
	if err != nil || follower == nil {
		return err
	}

	lastIndex, _ := node.log.LastIndexAndTerm()
	return node.advanceCommitIndex(min(payload.CommitIndex, lastIndex))
}

// handleAppendEntries replicates leader entries into the local log:
// the entry preceding the new ones must exist with a matching term, a
// conflicting uncommitted suffix is truncated, and everything is durably
// stored before the acknowledgment is sent.
func (node *Node) handleAppendEntries(message raft_messages.Message, payload *raft_messages.AppendEntriesPayload) error {
	if message.Term < node.currentTerm {
		node.send(message.From, &raft_messages.AppendEntriesResultPayload{Success: false})
		return nil
	}

	follower, err := node.followLeaderMessage(message)
	if err != nil || follower == nil {
		return err
	}

	if payload.PrevLogIndex > 0 {
		prevEntry, found, err := node.log.Entry(payload.PrevLogIndex)
		if err != nil {
			return err
		}
		if !found || prevEntry.Term != payload.PrevLogTerm {
			node.send(message.From, &raft_messages.AppendEntriesResultPayload{Success: false})
			return nil
		}
	}

	lastMatched := payload.PrevLogIndex
	for _, entry := range payload.Entries {
		existing, found, err := node.log.Entry(entry.Index)
		if err != nil {
			return err
		}

		if found && existing.Term == entry.Term {
			// Already stored by an earlier append of the same entry.
			lastMatched = entry.Index
			continue
		}

		if found {
			// Conflicting uncommitted suffix, drop it in favor of the
			// leader's entries.
			if err := node.log.TruncateFrom(entry.Index); err != nil {
				return err
			}
		}

		if err := node.log.AppendReplicated(entry); err != nil {
			return err
		}
		lastMatched = entry.Index
	}

	if err := node.advanceCommitIndex(min(payload.CommitIndex, lastMatched)); err != nil {
		return err
	}

	node.send(message.From, &raft_messages.AppendEntriesResultPayload{
		Success:          true,
		LastMatchedIndex: lastMatched,
	})

	return nil
}

// handleRequestVote grants a vote iff the candidate's term is current,
// this node has not voted for anyone else in it, and the candidate's log
// is at least as up-to-date as ours (highest last term wins, then highest
// last index). Votes are first come, first served - and persisted before
// the response leaves the node.
func (node *Node) handleRequestVote(message raft_messages.Message, payload *raft_messages.RequestVotePayload) error {
	granted := false
	if message.Term == node.currentTerm {
		if follower, ok := node.role.(*raft_state.FollowerState); ok {
			candidateId := int(message.From.NodeId)
			alreadyVoted := follower.VotedFor != raft_state.NilVotedFor && follower.VotedFor != candidateId

			if !alreadyVoted && node.candidateLogUpToDate(payload) {
				if follower.VotedFor != candidateId {
					if err := node.log.SetTermAndVote(node.currentTerm, candidateId); err != nil {
						return err
					}
					follower.VotedFor = candidateId
				}
				granted = true
			}
		}
	}

	node.logger.Logf("vote requested by node %d in term %d | granted: %t", message.From.NodeId, message.Term, granted)
	node.send(message.From, &raft_messages.RequestVoteResultPayload{VoteGranted: granted})
	return nil
}

// candidateLogUpToDate reports whether a candidate's log is at least as
// up-to-date as this node's. Omitting this check would let a candidate
// with a stale log erase committed entries.
func (node *Node) candidateLogUpToDate(payload *raft_messages.RequestVotePayload) bool {
	lastIndex, lastTerm := node.log.LastIndexAndTerm()

	if payload.LastLogTerm != lastTerm {
		return payload.LastLogTerm > lastTerm
	}
	return payload.LastLogIndex >= lastIndex
}

// followLeaderMessage reacts to a message asserting leader authority in
// the node's current term. It returns the follower state to continue
// processing with, or nil when the message has to be ignored.
func (node *Node) followLeaderMessage(message raft_messages.Message) (*raft_state.FollowerState, error) {
	leaderId := int(message.From.NodeId)

	switch role := node.role.(type) {
	case *raft_state.FollowerState:
		role.TicksSinceHeartbeat = 0
		if role.Leader != leaderId {
			role.Leader = leaderId
			node.logger.Logf("following leader %d in term %d", leaderId, node.currentTerm)
			node.forwardPendingClientRequests(role)
		}
		return role, nil
	case *raft_state.CandidateState:
		// A rival established itself as leader in this term.
		if err := node.becomeFollower(node.currentTerm, leaderId); err != nil {
			return nil, err
		}
		follower := node.role.(*raft_state.FollowerState)
		follower.TicksSinceHeartbeat = 0
		return follower, nil
	default:
		// Two leaders in one term would break election safety; the other
		// node is misbehaving, not us.
		node.logger.Logf("ignoring leader message from node %d in own term %d", leaderId, node.currentTerm)
		return nil, nil
	}
}

// advanceCommitIndex moves the commit index forward, never backward, and
// forwards newly committed entries to the state machine driver.
func (node *Node) advanceCommitIndex(commitIndex raft_state.LogEntryIndex) error {
	if commitIndex <= node.commitIndex {
		return nil
	}

	node.commitIndex = commitIndex
	return node.forwardCommitted()
}

func min(a raft_state.LogEntryIndex, b raft_state.LogEntryIndex) raft_state.LogEntryIndex {
	if a < b {
		return a
	}
	return b
}
