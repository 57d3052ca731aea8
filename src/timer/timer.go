package timer

import (
	"math/rand"

	"raftkv/src/raft_state"
)

// TimeoutSource produces election timeouts measured in ticks.
//
// Raft uses randomized election timeouts to make split votes rare: each
// node draws its timeout independently from a fixed interval, so in most
// cases only a single node times out. The source is injected into nodes
// so tests can supply deterministic sequences.
type TimeoutSource interface {
	// ElectionTimeout returns a timeout drawn uniformly from
	// [min, max) as configured at construction.
	ElectionTimeout() raft_state.Ticks
}

type randomTimeoutSource struct {
	min  raft_state.Ticks
	max  raft_state.Ticks
	rand *rand.Rand
}

// CreateRandomTimeoutSource returns a TimeoutSource drawing uniformly from
// [min, max) using the given seed.
func CreateRandomTimeoutSource(min raft_state.Ticks, max raft_state.Ticks, seed int64) TimeoutSource {
	return &randomTimeoutSource{
		min:  min,
		max:  max,
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (source *randomTimeoutSource) ElectionTimeout() raft_state.Ticks {
	return source.min + raft_state.Ticks(source.rand.Intn(int(source.max-source.min)))
}

// FixedTimeoutSource always returns the same timeout. Used by tests and
// playground commands that need reproducible election timing.
type FixedTimeoutSource struct {
	Timeout raft_state.Ticks
}

func (source *FixedTimeoutSource) ElectionTimeout() raft_state.Ticks {
	return source.Timeout
}
