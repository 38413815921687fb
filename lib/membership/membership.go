package membership

import (
	"sort"
	"sync"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("membership")

// ErrInvalidMode is returned when a selection strategy does not apply to the cluster mode
var ErrInvalidMode = grid.NewError(grid.CodeClusterInvalidMode, "selection strategy not supported by cluster mode")

// Membership owns the current View of a cluster. The view is replaced as a
// whole on every update; readers take a snapshot and never block writers for
// longer than a pointer copy.
type Membership struct {
	mode grid.ClusterMode

	mu   sync.RWMutex
	view *View
}

// New creates an empty membership for the given mode
func New(mode grid.ClusterMode) *Membership {
	return &Membership{
		mode: mode,
		view: NewView(nil, NewBucketTable()),
	}
}

// Mode returns the cluster mode
func (m *Membership) Mode() grid.ClusterMode {
	return m.mode
}

// Snapshot returns the current view
func (m *Membership) Snapshot() *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// Update installs the incoming node list. The list is ordered by instance id
// before rebalancing so every process derives the same bucket table. It
// returns whether the node set changed.
func (m *Membership) Update(incoming []*grid.ClusterNodeInfo) bool {
	sorted := make([]*grid.ClusterNodeInfo, len(incoming))
	copy(sorted, incoming)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InstanceNodeID < sorted[j].InstanceNodeID
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	nodes, table, changed := Rebalance(m.view.nodes, m.view.buckets, sorted)
	if !changed {
		return false
	}
	m.view = NewView(nodes, table)

	Logger.Debugf("membership updated (%s): %d nodes", m.mode, len(nodes))
	return true
}

// --------------------------------------------------------------------------
// Mode-checked Selection
// --------------------------------------------------------------------------

// Master returns the master node (MasterSlave mode only)
func (m *Membership) Master() (*grid.ClusterNodeInfo, error) {
	if m.mode != grid.ModeMasterSlave {
		return nil, ErrInvalidMode
	}
	return m.Snapshot().Master()
}

// Slave returns a random slave node (MasterSlave mode only)
func (m *Membership) Slave() (*grid.ClusterNodeInfo, error) {
	if m.mode != grid.ModeMasterSlave {
		return nil, ErrInvalidMode
	}
	return m.Snapshot().Slave()
}

// Random returns a random node
func (m *Membership) Random() (*grid.ClusterNodeInfo, error) {
	return m.Snapshot().Random()
}

// ByMod returns nodes[|val| mod n]
func (m *Membership) ByMod(val int64) (*grid.ClusterNodeInfo, error) {
	return m.Snapshot().ByMod(val)
}

// ByInstanceID returns the node with the given instance id
func (m *Membership) ByInstanceID(instanceID string) (*grid.ClusterNodeInfo, error) {
	return m.Snapshot().ByInstanceID(instanceID)
}

// ByHash returns the owner of the key's bucket (ClusterWithHash mode only)
func (m *Membership) ByHash(key int64) (*grid.ClusterNodeInfo, error) {
	if m.mode != grid.ModeClusterWithHash {
		return nil, ErrInvalidMode
	}
	return m.Snapshot().ByHash(key)
}

// ByHashKey routes a string key through murmur3 (ClusterWithHash mode only)
func (m *Membership) ByHashKey(key string) (*grid.ClusterNodeInfo, error) {
	if m.mode != grid.ModeClusterWithHash {
		return nil, ErrInvalidMode
	}
	return m.Snapshot().ByHashKey(key)
}
