package membership

import (
	"math/rand/v2"
	"strings"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/spaolacci/murmur3"
)

// ErrNoNode is returned when a lookup finds no live owner
var ErrNoNode = grid.NewError(grid.CodeClusterNoNode, "no cluster node available")

// View is an immutable snapshot of the membership. All selection functions are
// read-only and safe for concurrent use.
type View struct {
	nodes   []*grid.ClusterNodeInfo
	buckets BucketTable
}

// NewView creates a view from a node list and bucket table. Both are retained, callers
// must not modify them afterwards.
func NewView(nodes []*grid.ClusterNodeInfo, buckets BucketTable) *View {
	if len(buckets) != BucketCount {
		buckets = NewBucketTable()
	}
	return &View{nodes: nodes, buckets: buckets}
}

// Nodes returns a copy of the node list
func (v *View) Nodes() []*grid.ClusterNodeInfo {
	out := make([]*grid.ClusterNodeInfo, len(v.nodes))
	copy(out, v.nodes)
	return out
}

// Len returns the number of live nodes
func (v *View) Len() int {
	return len(v.nodes)
}

// Owner returns the instance id owning a bucket ("" if unassigned)
func (v *View) Owner(bucket int) string {
	if bucket < 0 || bucket >= len(v.buckets) {
		return ""
	}
	return v.buckets[bucket]
}

// Buckets returns a copy of the bucket table
func (v *View) Buckets() BucketTable {
	return v.buckets.Clone()
}

// --------------------------------------------------------------------------
// Selection Strategies
// --------------------------------------------------------------------------

// Master returns node[0]
func (v *View) Master() (*grid.ClusterNodeInfo, error) {
	if len(v.nodes) == 0 {
		return nil, ErrNoNode
	}
	return v.nodes[0], nil
}

// Slave returns a random node other than the master. Requires at least two nodes.
func (v *View) Slave() (*grid.ClusterNodeInfo, error) {
	if len(v.nodes) < 2 {
		return nil, ErrNoNode
	}
	return v.nodes[1+rand.IntN(len(v.nodes)-1)], nil
}

// Random returns a uniformly chosen node
func (v *View) Random() (*grid.ClusterNodeInfo, error) {
	if len(v.nodes) == 0 {
		return nil, ErrNoNode
	}
	return v.nodes[rand.IntN(len(v.nodes))], nil
}

// ByMod returns nodes[|val| mod len(nodes)]. The assignment is only stable while
// the node count is unchanged.
func (v *View) ByMod(val int64) (*grid.ClusterNodeInfo, error) {
	if len(v.nodes) == 0 {
		return nil, ErrNoNode
	}
	return v.nodes[absUint64(val)%uint64(len(v.nodes))], nil
}

// ByInstanceID returns the node with the given instance id (case-insensitive)
func (v *View) ByInstanceID(instanceID string) (*grid.ClusterNodeInfo, error) {
	if instanceID == "" {
		return nil, ErrNoNode
	}
	for _, n := range v.nodes {
		if strings.EqualFold(n.InstanceNodeID, instanceID) {
			return n, nil
		}
	}
	return nil, ErrNoNode
}

// ByHash returns the owner of bucket |key| mod BucketCount
func (v *View) ByHash(key int64) (*grid.ClusterNodeInfo, error) {
	return v.ByInstanceID(v.buckets[Bucket(key)])
}

// ByHashKey hashes a string key with murmur3 and routes it like ByHash
func (v *View) ByHashKey(key string) (*grid.ClusterNodeInfo, error) {
	return v.ByHash(HashKey(key))
}

// HashKey maps a string routing key to an integer key
func HashKey(key string) int64 {
	return int64(murmur3.Sum32([]byte(key)))
}
