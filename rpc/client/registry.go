package client

import (
	"strings"

	"github.com/ValentinKolb/gridRPC/lib/cluster"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry caches the cluster clients per grid and the communicators per node
// of a process. It is created at start up and passed to every ClusterInvoker.
type Registry struct {
	clients *xsync.MapOf[string, *cluster.ClusterClient]
	comms   *xsync.MapOf[string, *Communicator]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		clients: xsync.NewMapOf[string, *cluster.ClusterClient](),
		comms:   xsync.NewMapOf[string, *Communicator](),
	}
}

// ClusterClient returns the cached client of uri, creating it with factory on first use
func (r *Registry) ClusterClient(uri grid.GridUri, factory func() (*cluster.ClusterClient, error)) (*cluster.ClusterClient, error) {
	return loadOrCreate(r.clients, uri.String(), factory, (*cluster.ClusterClient).Stop)
}

// Communicator returns the cached communicator of node, creating it with factory on first use
func (r *Registry) Communicator(node *grid.ClusterNodeInfo, factory func() (*Communicator, error)) (*Communicator, error) {
	return loadOrCreate(r.comms, communicatorKey(node), factory, func(c *Communicator) { _ = c.Close() })
}

// RemoveCommunicator closes and forgets the communicator of node
func (r *Registry) RemoveCommunicator(node *grid.ClusterNodeInfo) {
	if comm, ok := r.comms.LoadAndDelete(communicatorKey(node)); ok {
		_ = comm.Close()
	}
}

// RetainCommunicators closes the communicators of uri whose node is not in live
func (r *Registry) RetainCommunicators(uri grid.GridUri, live []*grid.ClusterNodeInfo) {
	keep := make(map[string]struct{}, len(live))
	for _, n := range live {
		keep[communicatorKey(n)] = struct{}{}
	}
	prefix := uri.String() + "/"
	r.comms.Range(func(key string, _ *Communicator) bool {
		if _, ok := keep[key]; !ok && strings.HasPrefix(key, prefix) {
			if comm, ok := r.comms.LoadAndDelete(key); ok {
				Logger.Infof("closing communicator %s of departed node", key)
				_ = comm.Close()
			}
		}
		return true
	})
}

// Close stops all cluster clients and closes all communicators
func (r *Registry) Close() error {
	r.clients.Range(func(key string, c *cluster.ClusterClient) bool {
		c.Stop()
		r.clients.Delete(key)
		return true
	})
	r.comms.Range(func(key string, c *Communicator) bool {
		_ = c.Close()
		r.comms.Delete(key)
		return true
	})
	return nil
}

func communicatorKey(node *grid.ClusterNodeInfo) string {
	return node.Grid().String() + "/" + node.InstanceNodeID + "@" + node.Endpoint()
}

// loadOrCreate returns the value of key or stores the result of factory. The
// factory runs outside the map lock; the loser of a concurrent creation is discarded.
func loadOrCreate[V any](m *xsync.MapOf[string, V], key string, factory func() (V, error), discard func(V)) (V, error) {
	if v, ok := m.Load(key); ok {
		return v, nil
	}
	created, err := factory()
	if err != nil {
		var zero V
		return zero, err
	}
	actual, loaded := m.LoadOrStore(key, created)
	if loaded {
		discard(created)
	}
	return actual, nil
}
