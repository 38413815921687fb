package membership

import (
	"github.com/ValentinKolb/gridRPC/lib/grid"
)

// BucketCount is the fixed number of hash buckets
const BucketCount = 1000

// BucketTable maps a bucket index to the instance id of the owning node.
// An empty string means the bucket has no owner.
type BucketTable []string

// NewBucketTable returns a table with every bucket unassigned
func NewBucketTable() BucketTable {
	return make(BucketTable, BucketCount)
}

// Clone returns a copy of the table
func (b BucketTable) Clone() BucketTable {
	c := make(BucketTable, BucketCount)
	copy(c, b)
	return c
}

// Bucket returns the bucket index for a key: |key| mod BucketCount
func Bucket(key int64) int {
	return int(absUint64(key) % BucketCount)
}

// Rebalance computes the node list and bucket table that follow from the
// incoming node list. It never mutates its arguments.
//
// The transition is classified as:
//   - equal: same size and no new instance ids. Nothing changes.
//   - growth: the current list is empty, or every current node is still present
//     and only new nodes were added. A bucket keeps its owner unless the owner is
//     gone or bucket mod len(incoming) == 0; reassigned buckets go to
//     newNodes[bucket mod len(newNodes)].
//   - shrink or mixed: only buckets whose owner is gone are reassigned, preferring
//     newNodes[bucket mod len(newNodes)] and falling back to
//     incoming[bucket mod len(incoming)].
//   - wipeout: incoming is empty. Every bucket is reset.
//
// changed reports whether the node set changed.
func Rebalance(current []*grid.ClusterNodeInfo, buckets BucketTable, incoming []*grid.ClusterNodeInfo) (nodes []*grid.ClusterNodeInfo, table BucketTable, changed bool) {
	if len(buckets) != BucketCount {
		// a missing or foreign table is treated as fully unassigned
		buckets = NewBucketTable()
	}

	// wipeout
	if len(incoming) == 0 {
		return nil, NewBucketTable(), len(current) > 0
	}

	currentIDs := make(map[string]struct{}, len(current))
	for _, n := range current {
		currentIDs[n.InstanceNodeID] = struct{}{}
	}

	incomingIDs := make(map[string]struct{}, len(incoming))
	var newNodes []*grid.ClusterNodeInfo
	for _, n := range incoming {
		incomingIDs[n.InstanceNodeID] = struct{}{}
		if _, ok := currentIDs[n.InstanceNodeID]; !ok {
			newNodes = append(newNodes, n)
		}
	}

	// duplicate notifications are plausible, keep the fast path
	isEqual := len(current) == len(incoming) && len(newNodes) == 0
	if isEqual {
		return current, buckets, false
	}

	isBigger := len(current) == 0 ||
		(len(incoming) > len(current) && len(newNodes) == len(incoming)-len(current))

	nodes = make([]*grid.ClusterNodeInfo, len(incoming))
	copy(nodes, incoming)
	table = buckets.Clone()

	present := func(owner string) bool {
		if owner == "" {
			return false
		}
		_, ok := incomingIDs[owner]
		return ok
	}

	newCount := len(nodes)
	for i := range table {
		owner := table[i]

		if isBigger {
			if !present(owner) || i%newCount == 0 {
				table[i] = newNodes[i%len(newNodes)].InstanceNodeID
			}
			continue
		}

		if present(owner) {
			continue
		}
		if len(newNodes) > 0 {
			table[i] = newNodes[i%len(newNodes)].InstanceNodeID
		} else {
			table[i] = nodes[i%newCount].InstanceNodeID
		}
	}

	return nodes, table, true
}

// absUint64 returns |v| without overflowing on math.MinInt64
func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}
