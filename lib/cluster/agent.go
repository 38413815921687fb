package cluster

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
)

// ClusterNodeAgent announces a server node in its grid and keeps the view of
// all members of the grid. The registration is replayed when the session of the
// coordinator is lost.
type ClusterNodeAgent struct {
	*watcher
	node *grid.ClusterNodeInfo

	mu       sync.RWMutex
	nodePath string

	replayMu sync.Mutex
}

// NewClusterNodeAgent creates the agent of node
func NewClusterNodeAgent(c coord.ICoordinator, node *grid.ClusterNodeInfo, mode grid.ClusterMode, opts Options) (*ClusterNodeAgent, error) {
	if node == nil {
		return nil, grid.NewError(grid.CodeClusterInvalidParam, "cluster node info must be supplied")
	}
	w, err := newWatcher("agent", c, node.Grid(), mode, opts)
	if err != nil {
		return nil, err
	}
	a := &ClusterNodeAgent{watcher: w, node: node.Clone()}
	w.ownerID = a.InstanceNodeID
	return a, nil
}

// Node returns the announced node info
func (a *ClusterNodeAgent) Node() *grid.ClusterNodeInfo {
	n := a.node.Clone()
	n.InstanceNodeID = a.InstanceNodeID()
	n.IsOwner = true
	return n
}

// InstanceNodeID returns the id assigned by the coordinator, "" while unregistered
func (a *ClusterNodeAgent) InstanceNodeID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.nodePath == "" {
		return ""
	}
	return path.Base(a.nodePath)
}

// Start connects, registers the node and loads the membership. Failing steps
// are retried with a fixed backoff until ctx is done.
func (a *ClusterNodeAgent) Start(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		return err
	}
	events := a.coord.SessionEvents()

	if err := a.retry(ctx, "register node", a.register); err != nil {
		return err
	}

	var watch <-chan struct{}
	err := a.retry(ctx, "load nodes", func() (err error) {
		watch, err = a.load()
		return err
	})
	if err != nil {
		return err
	}

	a.wg.Add(3)
	go a.watchLoop(watch)
	go a.sessionLoop(events, a.onSessionEvent)
	go a.keepAlive()

	Logger.Infof("[agent %s] node %s registered as %s", a.uri, a.node.NodeName, a.InstanceNodeID())
	return nil
}

// Stop stops the agent and removes the registration
func (a *ClusterNodeAgent) Stop() {
	a.shutdown()

	a.mu.Lock()
	nodePath := a.nodePath
	a.nodePath = ""
	a.mu.Unlock()

	if nodePath != "" {
		if err := a.coord.Delete(nodePath); err != nil && !errors.Is(err, coord.ErrNoNode) && !errors.Is(err, coord.ErrClosed) {
			Logger.Warningf("[agent %s] failed to remove %s: %v", a.uri, nodePath, err)
		}
	}
}

// PublishCommConfig stores the communicator configuration of the grid in the
// register path, where clients read it on start
func (a *ClusterNodeAgent) PublishCommConfig(data []byte) error {
	if err := a.coord.Set(a.uri.RegisterPath(), data); err != nil {
		return grid.Errorf(grid.CodeClusterFail, "publish communicator config of %s: %v", a.uri, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// register creates the ephemeral member node
func (a *ClusterNodeAgent) register() error {
	data, err := a.node.Marshal()
	if err != nil {
		return err
	}
	nodePath, err := a.coord.CreateEphemeralSequential(a.uri.NodePrefix(), data)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.nodePath = nodePath
	a.mu.Unlock()
	return nil
}

// registered reports whether the member node still exists
func (a *ClusterNodeAgent) registered() (bool, error) {
	a.mu.RLock()
	nodePath := a.nodePath
	a.mu.RUnlock()
	if nodePath == "" {
		return false, nil
	}
	return a.coord.Exists(nodePath)
}

// replay registers the node again (unless it still exists) and reloads the membership
func (a *ClusterNodeAgent) replay() {
	a.replayMu.Lock()
	defer a.replayMu.Unlock()
	if ok, err := a.registered(); err == nil && ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.retry(ctx, "re-register node", a.register); err != nil {
		return
	}
	Logger.Infof("[agent %s] node %s re-registered as %s", a.uri, a.node.NodeName, a.InstanceNodeID())
	a.requestResync()
}

func (a *ClusterNodeAgent) onSessionEvent(ev coord.SessionEvent) {
	switch ev.Type {
	case coord.EventConnected:
		ok, err := a.registered()
		if err == nil && !ok {
			a.replay()
		} else {
			a.requestResync()
		}
	case coord.EventExpired:
		Logger.Warningf("[agent %s] session expired, registration lost", a.uri)
	}
}

// keepAlive periodically checks the registration and replays it if the node vanished
func (a *ClusterNodeAgent) keepAlive() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			ok, err := a.registered()
			if err != nil {
				Logger.Debugf("[agent %s] keep alive check failed: %v", a.uri, err)
				continue
			}
			if !ok {
				Logger.Warningf("[agent %s] registration of %s vanished, replaying", a.uri, a.node.NodeName)
				a.replay()
			}
		}
	}
}
