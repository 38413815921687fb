package cluster

import (
	"context"
	"sync"

	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
)

// ClusterClient discovers the members of a grid for a calling process
type ClusterClient struct {
	*watcher

	mu         sync.RWMutex
	configData []byte
}

// NewClusterClient creates the client of grid uri
func NewClusterClient(c coord.ICoordinator, uri grid.GridUri, mode grid.ClusterMode, opts Options) (*ClusterClient, error) {
	w, err := newWatcher("client", c, uri, mode, opts)
	if err != nil {
		return nil, err
	}
	return &ClusterClient{watcher: w}, nil
}

// Start connects, reads the communicator configuration of the grid and loads
// the membership. Failing steps are retried with a fixed backoff until ctx is done.
func (c *ClusterClient) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	events := c.coord.SessionEvents()

	err := c.retry(ctx, "read communicator config", func() error {
		data, err := c.coord.Get(c.uri.RegisterPath())
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.configData = data
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	var watch <-chan struct{}
	err = c.retry(ctx, "load nodes", func() (err error) {
		watch, err = c.load()
		return err
	})
	if err != nil {
		return err
	}

	c.wg.Add(2)
	go c.watchLoop(watch)
	go c.sessionLoop(events, func(ev coord.SessionEvent) {
		if ev.Type == coord.EventConnected {
			c.requestResync()
		}
	})

	Logger.Infof("[client %s] started with %d nodes", c.uri, c.members.Snapshot().Len())
	return nil
}

// CommConfigData returns the raw communicator configuration stored for the
// grid, nil if none is stored
func (c *ClusterClient) CommConfigData() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configData
}

// Stop stops watching the grid
func (c *ClusterClient) Stop() {
	c.shutdown()
}
