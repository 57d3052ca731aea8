package raft_networking

import (
	"sync"

	"raftkv/src/logging"
	"raftkv/src/raft_messages"
	"raftkv/src/raft_state"
)

const inboxBufferSize = 1000
const clientBufferSize = 100

// NetworkController is the in-process transport connecting a playground
// cluster: per-node inboxes, per-client response channels, broadcast
// expansion and configurable network splits. Message values pass through
// by ownership transfer; nothing is shared between nodes. Delivery is
// FIFO per sender-receiver pair and lossy under splits or back-pressure,
// which is exactly the failure model the nodes are built for.
type NetworkController struct {
	mutex         sync.Mutex
	networkSplits [][]raft_state.NodeId
	nodeInboxes   map[raft_state.NodeId]chan raft_messages.Message
	clientInboxes map[string]chan raft_messages.Message
	logger        *logging.Logger
}

func CreateNetworkController(nodeIds []raft_state.NodeId, logger *logging.Logger) *NetworkController {
	controller := &NetworkController{
		nodeInboxes:   make(map[raft_state.NodeId]chan raft_messages.Message),
		clientInboxes: make(map[string]chan raft_messages.Message),
		logger:        logger,
	}

	for _, nodeId := range nodeIds {
		controller.nodeInboxes[nodeId] = make(chan raft_messages.Message, inboxBufferSize)
	}

	controller.networkSplits = [][]raft_state.NodeId{append([]raft_state.NodeId(nil), nodeIds...)}

	return controller
}

// NodeInbox returns the channel a node's processing loop receives from.
func (controller *NetworkController) NodeInbox(nodeId raft_state.NodeId) chan raft_messages.Message {
	return controller.nodeInboxes[nodeId]
}

// CreateNodeOutbox returns a channel a node sends through; a routing
// goroutine drains it until quit closes. The buffer keeps a slow or
// partitioned peer from ever stalling the sending node.
func (controller *NetworkController) CreateNodeOutbox(nodeId raft_state.NodeId, quit chan struct{}) chan raft_messages.Message {
	outbox := make(chan raft_messages.Message, inboxBufferSize)

	go func() {
		for {
			select {
			case message := <-outbox:
				controller.route(message)
			case <-quit:
				return
			}
		}
	}()

	return outbox
}

// RegisterClient creates a response channel for the given client id.
func (controller *NetworkController) RegisterClient(clientId string) chan raft_messages.Message {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	inbox := make(chan raft_messages.Message, clientBufferSize)
	controller.clientInboxes[clientId] = inbox
	return inbox
}

func (controller *NetworkController) UnregisterClient(clientId string) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	delete(controller.clientInboxes, clientId)
}

// SendFromClient submits a client command to the chosen node. Clients are
// not subject to network splits; only node-to-node traffic is.
func (controller *NetworkController) SendFromClient(
	clientId string,
	nodeId raft_state.NodeId,
	requestId string,
	command []byte,
) bool {
	inbox, exists := controller.nodeInboxes[nodeId]
	if !exists {
		return false
	}

	message := raft_messages.Message{
		From: raft_messages.ClientAddress(clientId),
		To:   raft_messages.NodeAddress(nodeId),
		Payload: &raft_messages.ClientRequestPayload{
			RequestId: requestId,
			Command:   command,
		},
	}

	select {
	case inbox <- message:
		return true
	default:
		return false
	}
}

// SetNetworkSplits partitions the cluster into the given groups. Nodes in
// different groups silently lose each other's messages.
func (controller *NetworkController) SetNetworkSplits(splits [][]raft_state.NodeId) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	controller.networkSplits = splits
}

func (controller *NetworkController) route(message raft_messages.Message) {
	switch message.To.Kind {
	case raft_messages.AddressBroadcast:
		for nodeId := range controller.nodeInboxes {
			if message.From.Kind == raft_messages.AddressNode && nodeId == message.From.NodeId {
				continue
			}
			controller.deliverToNode(message, nodeId)
		}
	case raft_messages.AddressNode:
		controller.deliverToNode(message, message.To.NodeId)
	case raft_messages.AddressClient:
		controller.deliverToClient(message)
	}
}

func (controller *NetworkController) deliverToNode(message raft_messages.Message, nodeId raft_state.NodeId) {
	if message.From.Kind == raft_messages.AddressNode && !controller.canConnect(message.From.NodeId, nodeId) {
		controller.logger.Logf("%s lost %s to node:%d - network split",
			message.From, message.Payload.PayloadTypeString(), nodeId)
		return
	}

	select {
	case controller.nodeInboxes[nodeId] <- message:
		controller.logger.Logf("%s->node:%d %s (Term: %d)",
			message.From, nodeId, raft_messages.PayloadSummary(message.Payload), message.Term)
	default:
		controller.logger.Logf("%s lost %s to node:%d - inbox full",
			message.From, message.Payload.PayloadTypeString(), nodeId)
	}
}

func (controller *NetworkController) deliverToClient(message raft_messages.Message) {
	controller.mutex.Lock()
	inbox, exists := controller.clientInboxes[message.To.ClientId]
	controller.mutex.Unlock()

	if !exists {
		controller.logger.Logf("%s lost %s - unknown %s",
			message.From, message.Payload.PayloadTypeString(), message.To)
		return
	}

	select {
	case inbox <- message:
		controller.logger.Logf("%s->%s %s",
			message.From, message.To, raft_messages.PayloadSummary(message.Payload))
	default:
		controller.logger.Logf("%s lost %s - %s inbox full",
			message.From, message.Payload.PayloadTypeString(), message.To)
	}
}

func (controller *NetworkController) canConnect(a raft_state.NodeId, b raft_state.NodeId) bool {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	for _, split := range controller.networkSplits {
		if sliceContains(split, a) && sliceContains(split, b) {
			return true
		}
	}

	return false
}

func sliceContains(s []raft_state.NodeId, x raft_state.NodeId) bool {
	for _, val := range s {
		if val == x {
			return true
		}
	}

	return false
}
