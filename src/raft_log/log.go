package raft_log

import (
	"encoding/binary"
	"errors"
	"fmt"

	"raftkv/src/raft_state"
	"raftkv/src/storage"
)

// Storage schema, on top of a lexicographically ordered KV engine:
//   e/<8-byte big-endian index> -> 8-byte term + command bytes
//   term-vote                   -> 8-byte term + vote flag + voted-for id
//   last-entry                  -> 8-byte index + 8-byte term
//
// The last-entry record is maintained on every append and truncation so
// recovering the last stored index and term never requires a scan.
var (
	entryKeyPrefix = []byte("e/")
	termVoteKey    = []byte("term-vote")
	lastEntryKey   = []byte("last-entry")
)

var ErrOutOfSequence = errors.New("log entry index out of sequence")

// Log represents this node's slice of the distributed append-only commit
// log, together with the node's persisted term and cast vote.
//
// Each entry stores a state machine command along with the term in which
// the entry was received by the leader. Term numbers in entries are used
// to detect inconsistencies between logs.
type Log struct {
	engine storage.Engine

	// Index of the last stored entry
	lastStoredIndex raft_state.LogEntryIndex
	// Active term when the last entry was stored
	lastStoredTerm raft_state.Term
}

// OpenLog recovers a Log from the given engine's persisted state.
func OpenLog(engine storage.Engine) (*Log, error) {
	log := &Log{engine: engine}

	value, found, err := engine.Get(lastEntryKey)
	if err != nil {
		return nil, fmt.Errorf("reading last entry record: %w", err)
	}
	if found {
		log.lastStoredIndex = binary.BigEndian.Uint64(value[:8])
		log.lastStoredTerm = binary.BigEndian.Uint64(value[8:16])
	}

	return log, nil
}

// Append assigns the next sequential index to the given command, tags it
// with the given term and durably stores it before returning.
func (log *Log) Append(term raft_state.Term, command []byte) (raft_state.LogEntry, error) {
	entry := raft_state.LogEntry{
		Index:   log.lastStoredIndex + 1,
		Term:    term,
		Command: command,
	}

	if err := log.storeEntry(entry); err != nil {
		return raft_state.LogEntry{}, err
	}

	return entry, nil
}

// AppendReplicated durably stores an entry received from the leader. The
// entry must directly follow the last stored one; callers resolve
// conflicts with TruncateFrom before appending.
func (log *Log) AppendReplicated(entry raft_state.LogEntry) error {
	if entry.Index != log.lastStoredIndex+1 {
		return fmt.Errorf("%w: appending %d after %d", ErrOutOfSequence, entry.Index, log.lastStoredIndex)
	}

	return log.storeEntry(entry)
}

func (log *Log) storeEntry(entry raft_state.LogEntry) error {
	value := make([]byte, 8+len(entry.Command))
	binary.BigEndian.PutUint64(value, entry.Term)
	copy(value[8:], entry.Command)

	if err := log.engine.Set(entryKey(entry.Index), value); err != nil {
		return fmt.Errorf("storing log entry %d: %w", entry.Index, err)
	}
	if err := log.setLastEntryRecord(entry.Index, entry.Term); err != nil {
		return err
	}
	if err := log.engine.Flush(); err != nil {
		return fmt.Errorf("flushing log entry %d: %w", entry.Index, err)
	}

	log.lastStoredIndex = entry.Index
	log.lastStoredTerm = entry.Term
	return nil
}

// Entry returns the stored entry at the given index, if it exists.
func (log *Log) Entry(index raft_state.LogEntryIndex) (raft_state.LogEntry, bool, error) {
	if index == 0 || index > log.lastStoredIndex {
		return raft_state.LogEntry{}, false, nil
	}

	value, found, err := log.engine.Get(entryKey(index))
	if err != nil {
		return raft_state.LogEntry{}, false, fmt.Errorf("reading log entry %d: %w", index, err)
	}
	if !found {
		return raft_state.LogEntry{}, false, nil
	}

	return raft_state.LogEntry{
		Index:   index,
		Term:    binary.BigEndian.Uint64(value[:8]),
		Command: value[8:],
	}, true, nil
}

// Entries returns up to max stored entries starting at the given index.
func (log *Log) Entries(from raft_state.LogEntryIndex, max int) ([]raft_state.LogEntry, error) {
	var entries []raft_state.LogEntry

	for index := from; index <= log.lastStoredIndex && len(entries) < max; index++ {
		entry, found, err := log.Entry(index)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// TruncateFrom removes all entries from the given index onward. Only used
// to drop an uncommitted suffix that conflicts with the leader's log.
func (log *Log) TruncateFrom(from raft_state.LogEntryIndex) error {
	if from == 0 || from > log.lastStoredIndex {
		return nil
	}

	for index := from; index <= log.lastStoredIndex; index++ {
		if err := log.engine.Delete(entryKey(index)); err != nil {
			return fmt.Errorf("deleting log entry %d: %w", index, err)
		}
	}

	newLastIndex := from - 1
	newLastTerm := raft_state.Term(0)
	if newLastIndex > 0 {
		entry, found, err := log.Entry(newLastIndex)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: no entry at %d after truncation", ErrOutOfSequence, newLastIndex)
		}
		newLastTerm = entry.Term
	}

	log.lastStoredIndex = newLastIndex
	log.lastStoredTerm = newLastTerm
	if err := log.setLastEntryRecord(newLastIndex, newLastTerm); err != nil {
		return err
	}
	if err := log.engine.Flush(); err != nil {
		return fmt.Errorf("flushing truncation from %d: %w", from, err)
	}

	return nil
}

// LastIndexAndTerm returns the index and term of the last stored entry.
func (log *Log) LastIndexAndTerm() (raft_state.LogEntryIndex, raft_state.Term) {
	return log.lastStoredIndex, log.lastStoredTerm
}

// SetTermAndVote durably stores the current term together with the vote
// cast in it. Both live in a single record, so a crash can never leave a
// stale vote paired with a new term.
func (log *Log) SetTermAndVote(term raft_state.Term, votedFor int) error {
	value := make([]byte, 10)
	binary.BigEndian.PutUint64(value, term)
	if votedFor != raft_state.NilVotedFor {
		value[8] = 1
		value[9] = byte(votedFor)
	}

	if err := log.engine.Set(termVoteKey, value); err != nil {
		return fmt.Errorf("storing term and vote: %w", err)
	}
	if err := log.engine.Flush(); err != nil {
		return fmt.Errorf("flushing term and vote: %w", err)
	}

	return nil
}

// TermAndVote returns the persisted current term and the vote cast in it.
func (log *Log) TermAndVote() (raft_state.Term, int, error) {
	value, found, err := log.engine.Get(termVoteKey)
	if err != nil {
		return 0, raft_state.NilVotedFor, fmt.Errorf("reading term and vote: %w", err)
	}
	if !found {
		return 0, raft_state.NilVotedFor, nil
	}

	term := binary.BigEndian.Uint64(value[:8])
	votedFor := raft_state.NilVotedFor
	if value[8] == 1 {
		votedFor = int(value[9])
	}

	return term, votedFor, nil
}

func (log *Log) setLastEntryRecord(index raft_state.LogEntryIndex, term raft_state.Term) error {
	value := make([]byte, 16)
	binary.BigEndian.PutUint64(value, index)
	binary.BigEndian.PutUint64(value[8:], term)

	if err := log.engine.Set(lastEntryKey, value); err != nil {
		return fmt.Errorf("storing last entry record: %w", err)
	}
	return nil
}

func entryKey(index raft_state.LogEntryIndex) []byte {
	key := make([]byte, len(entryKeyPrefix)+8)
	copy(key, entryKeyPrefix)
	binary.BigEndian.PutUint64(key[len(entryKeyPrefix):], index)
	return key
}
