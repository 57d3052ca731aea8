package node

// clusterSize returns the number of nodes in the cluster.
func (node *Node) clusterSize() uint8 {
	peerCount := uint8(len(node.peers))
	return peerCount + 1
}

// quorum returns the minimum number of agreeing members for any binding
// decision in this cluster.
func (node *Node) quorum() uint8 {
	return QuorumForClusterSize(node.clusterSize())
}

// QuorumForClusterSize returns the strict majority of a cluster of the
// given size. Ties are impossible: two disjoint quorums cannot exist.
func QuorumForClusterSize(clusterSize uint8) uint8 {
	return clusterSize/2 + 1
}
