package state_machine

import (
	"sync/atomic"

	"raftkv/src/logging"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
	"raftkv/src/storage"
)

// Instruction carries one committed log entry from the node to the driver.
// Instructions arrive in increasing index order. RequestId and Client are
// set only on the node that accepted the original client request.
type Instruction struct {
	Entry     raft_state.LogEntry
	RequestId string
	Client    raft_messages.MessageAddress
}

// Driver applies committed log entries to the replicated state machine in
// log order. The node never reads application results back directly;
// client responses flow out as ordinary messages.
type Driver struct {
	nodeId       raft_state.NodeId
	engine       storage.Engine
	instructions <-chan Instruction
	outbox       chan<- raft_messages.Message
	logger       *logging.Logger
	lastApplied  uint64
}

func CreateDriver(
	nodeId raft_state.NodeId,
	engine storage.Engine,
	instructions <-chan Instruction,
	outbox chan<- raft_messages.Message,
	logger *logging.Logger,
) *Driver {
	return &Driver{
		nodeId:       nodeId,
		engine:       engine,
		instructions: instructions,
		outbox:       outbox,
		logger:       logger,
	}
}

func (driver *Driver) Run(quit chan struct{}) {
	for {
		select {
		case instruction := <-driver.instructions:
			driver.apply(instruction)
		case <-quit:
			return
		}
	}
}

// LastApplied returns the index of the highest entry applied so far. Safe
// to call from outside the driver's goroutine.
func (driver *Driver) LastApplied() raft_state.LogEntryIndex {
	return atomic.LoadUint64(&driver.lastApplied)
}

func (driver *Driver) apply(instruction Instruction) {
	entry := instruction.Entry
	if entry.Index <= driver.LastApplied() {
		return
	}

	result, err := executeCommand(driver.engine, entry.Command)
	if err != nil {
		driver.logger.Logf("failed to apply entry %d: %s", entry.Index, err)
		result = "APPLY ERROR"
	}
	atomic.StoreUint64(&driver.lastApplied, entry.Index)

	if instruction.RequestId == "" {
		return
	}

	driver.outbox <- raft_messages.Message{
		Term: entry.Term,
		From: raft_messages.NodeAddress(driver.nodeId),
		To:   instruction.Client,
		Payload: &raft_messages.ResponseToClientPayload{
			RequestId: instruction.RequestId,
			Result:    result,
			Success:   err == nil,
		},
	}
}
