package raft_messages

import (
	"fmt"

	"raftkv/src/raft_state"
)

// AddressKind discriminates the targets a message can be addressed to.
type AddressKind int

const (
	// AddressNode targets a specific cluster node
	AddressNode AddressKind = iota
	// AddressBroadcast targets all peers of the sender
	AddressBroadcast
	// AddressClient targets a specific client
	AddressClient
)

// MessageAddress identifies a message sender or receiver: a specific node,
// a broadcast to all of the sender's peers, or a specific client.
type MessageAddress struct {
	Kind     AddressKind
	NodeId   raft_state.NodeId
	ClientId string
}

func NodeAddress(nodeId raft_state.NodeId) MessageAddress {
	return MessageAddress{Kind: AddressNode, NodeId: nodeId}
}

func BroadcastAddress() MessageAddress {
	return MessageAddress{Kind: AddressBroadcast}
}

func ClientAddress(clientId string) MessageAddress {
	return MessageAddress{Kind: AddressClient, ClientId: clientId}
}

func (address MessageAddress) String() string {
	switch address.Kind {
	case AddressBroadcast:
		return "broadcast"
	case AddressClient:
		return fmt.Sprintf("client:%s", address.ClientId)
	default:
		return fmt.Sprintf("node:%d", address.NodeId)
	}
}

// Message is the envelope exchanged between nodes (and clients). Term is
// the sender's current term at the moment the message was sent; receivers
// compare it against their own on every message.
type Message struct {
	Term    raft_state.Term
	From    MessageAddress
	To      MessageAddress
	Payload MessagePayload
}
