package cli

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"raftkv/src/config"
	"raftkv/src/logging"
	"raftkv/src/node"
	"raftkv/src/raft_log"
	"raftkv/src/raft_networking"
	"raftkv/src/raft_state"
	"raftkv/src/state_machine"
	"raftkv/src/storage"
	"raftkv/src/timer"
)

// runningNode bundles everything one playground node owns. The raft and
// application engines survive restarts; the node, driver and goroutines
// are rebuilt, so a restart exercises the crash-recovery path through the
// persisted term, vote and log.
type runningNode struct {
	node      *node.Node
	driver    *state_machine.Driver
	engine    storage.Engine
	appEngine storage.Engine
	ticks     chan struct{}
	quit      chan struct{}
}

type appContext struct {
	mutex             sync.Mutex
	nodes             map[raft_state.NodeId]*runningNode
	networkController *raft_networking.NetworkController
	logs              chan logging.LoggerEntry
}

func createAppContext() *appContext {
	logs := make(chan logging.LoggerEntry, 1000)

	context := &appContext{
		nodes: make(map[raft_state.NodeId]*runningNode),
		networkController: raft_networking.CreateNetworkController(
			config.Config.NodeIds,
			logging.CreateLogger("[NETWORK]", logs),
		),
		logs: logs,
	}

	for _, nodeId := range config.Config.NodeIds {
		context.nodes[nodeId] = &runningNode{
			engine:    storage.CreateMemoryEngine(),
			appEngine: storage.CreateMemoryEngine(),
		}
		if err := context.startNode(nodeId); err != nil {
			panic(any(err))
		}
	}

	go context.runTicker()

	return context
}

// startNode (re)builds a node from its engines and starts its processing
// loop and state machine driver.
func (context *appContext) startNode(nodeId raft_state.NodeId) error {
	context.mutex.Lock()
	defer context.mutex.Unlock()

	running := context.nodes[nodeId]

	raftLog, err := raft_log.OpenLog(running.engine)
	if err != nil {
		return err
	}

	quit := make(chan struct{})
	outbox := context.networkController.CreateNodeOutbox(nodeId, quit)
	instructions := make(chan state_machine.Instruction, 1024)
	logger := logging.CreateLogger(fmt.Sprintf("[NODE %d]", nodeId), context.logs)

	timeouts := timer.CreateRandomTimeoutSource(
		config.Config.ElectionTimeoutMinTicks,
		config.Config.ElectionTimeoutMaxTicks,
		time.Now().UnixNano()+int64(nodeId),
	)

	n, err := node.CreateNode(nodeId, peersOf(nodeId), raftLog, outbox, instructions, timeouts, logger)
	if err != nil {
		return err
	}

	driver := state_machine.CreateDriver(nodeId, running.appEngine, instructions, outbox, logger)

	running.node = n
	running.driver = driver
	running.ticks = make(chan struct{}, 1)
	running.quit = quit

	go node.StartProcessingLoop(n, context.networkController.NodeInbox(nodeId), running.ticks, quit)
	go driver.Run(quit)

	return nil
}

func (context *appContext) restartNode(nodeId raft_state.NodeId) error {
	context.mutex.Lock()
	running, exists := context.nodes[nodeId]
	if !exists {
		context.mutex.Unlock()
		return fmt.Errorf("unknown node %d", nodeId)
	}
	close(running.quit)
	context.mutex.Unlock()

	return context.startNode(nodeId)
}

// runTicker fans wall-clock ticks out to every running node. Nodes never
// read the clock themselves; this is the only place real time enters the
// cluster.
func (context *appContext) runTicker() {
	for {
		time.Sleep(time.Duration(config.Config.TickIntervalMilliseconds) * time.Millisecond)

		context.mutex.Lock()
		for _, running := range context.nodes {
			select {
			case running.ticks <- struct{}{}:
			default:
			}
		}
		context.mutex.Unlock()
	}
}

type nodeView struct {
	snapshot    node.Snapshot
	lastApplied raft_state.LogEntryIndex
}

func (context *appContext) nodeViews() []nodeView {
	context.mutex.Lock()
	defer context.mutex.Unlock()

	views := make([]nodeView, 0, len(context.nodes))
	for _, running := range context.nodes {
		views = append(views, nodeView{
			snapshot:    running.node.Snapshot(),
			lastApplied: running.driver.LastApplied(),
		})
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].snapshot.NodeId < views[j].snapshot.NodeId
	})

	return views
}

func peersOf(nodeId raft_state.NodeId) []raft_state.NodeId {
	var peers []raft_state.NodeId
	for _, id := range config.Config.NodeIds {
		if id != nodeId {
			peers = append(peers, id)
		}
	}
	return peers
}
