package domain

// Distances maps node id to shortest distance from one source node.
// Unreachable nodes are absent; a lookup miss never means a finite distance.
type Distances map[int]int64

// To returns the distance to node and whether node is reachable.
func (d Distances) To(node int) (int64, bool) {
	v, ok := d[node]
	return v, ok
}
