package cluster

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/lib/membership"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cluster")

const (
	DefaultRetryBackoff      = 500 * time.Millisecond
	DefaultKeepAliveInterval = 1500 * time.Millisecond
)

// Options tunes the retry behaviour of agents and clients
type Options struct {
	// RetryBackoff is the fixed delay between failed registration / load attempts
	RetryBackoff time.Duration
	// KeepAliveInterval is the interval of the registration check of an agent
	KeepAliveInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	return o
}

// NodeChangedHandler is called with the new node list after every membership change
type NodeChangedHandler func(nodes []*grid.ClusterNodeInfo)

// watcher keeps the membership of one grid in sync with the register path. It
// is shared by ClusterNodeAgent and ClusterClient.
type watcher struct {
	role    string
	coord   coord.ICoordinator
	uri     grid.GridUri
	opts    Options
	members *membership.Membership

	// ownerID returns the instance id of the local node ("" for clients)
	ownerID func() string

	handlersMu sync.RWMutex
	handlers   []NodeChangedHandler

	resync   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWatcher(role string, c coord.ICoordinator, uri grid.GridUri, mode grid.ClusterMode, opts Options) (*watcher, error) {
	if c == nil {
		return nil, grid.NewError(grid.CodeClusterInvalidParam, "no coordinator")
	}
	if !uri.IsValid() {
		return nil, grid.NewError(grid.CodeClusterInvalidParam, "invalid grid uri")
	}
	w := &watcher{
		role:    role,
		coord:   c,
		uri:     uri,
		opts:    opts.withDefaults(),
		members: membership.New(mode),
		ownerID: func() string { return "" },
		resync:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	metrics.GetOrCreateGauge(fmt.Sprintf(`grid_cluster_nodes{grid=%q,role=%q}`, uri.String(), role), func() float64 {
		return float64(w.members.Snapshot().Len())
	})
	return w, nil
}

// Grid returns the grid uri
func (w *watcher) Grid() grid.GridUri { return w.uri }

// Membership returns the live membership (selection strategies)
func (w *watcher) Membership() *membership.Membership { return w.members }

// Nodes returns the current node list
func (w *watcher) Nodes() []*grid.ClusterNodeInfo { return w.members.Snapshot().Nodes() }

// RegisterNodeChangedHandler adds a handler called after every membership change
func (w *watcher) RegisterNodeChangedHandler(handler NodeChangedHandler) {
	if handler == nil {
		return
	}
	w.handlersMu.Lock()
	w.handlers = append(w.handlers, handler)
	w.handlersMu.Unlock()
}

// connect establishes the session and creates the register path
func (w *watcher) connect(ctx context.Context) error {
	if err := w.coord.Connect(ctx); err != nil {
		return grid.Errorf(grid.CodeClusterConnectFailed, "%s %s: %v", w.role, w.uri, err)
	}
	return w.retry(ctx, "create register path", func() error {
		return w.coord.EnsurePath(w.uri.RegisterPath(), nil)
	})
}

// retry runs fn until it succeeds, ctx is done or the watcher stops
func (w *watcher) retry(ctx context.Context, what string, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, coord.ErrClosed) {
			return grid.Errorf(grid.CodeClusterFail, "%s %s: %s: %v", w.role, w.uri, what, err)
		}
		Logger.Warningf("[%s %s] %s failed, retrying in %s: %v", w.role, w.uri, what, w.opts.RetryBackoff, err)

		select {
		case <-ctx.Done():
			return grid.Errorf(grid.CodeClusterFail, "%s %s: %s: %v", w.role, w.uri, what, ctx.Err())
		case <-w.stop:
			return grid.Errorf(grid.CodeClusterFail, "%s %s: stopped", w.role, w.uri)
		case <-time.After(w.opts.RetryBackoff):
		}
	}
}

// load reads all member nodes, arms the children watch and installs the new
// membership. It returns the watch channel.
func (w *watcher) load() (<-chan struct{}, error) {
	registerPath := w.uri.RegisterPath()
	children, watch, err := w.coord.ChildrenW(registerPath)
	if err != nil {
		return nil, grid.Errorf(grid.CodeClusterReadFailed, "list %s: %v", registerPath, err)
	}

	owner := w.ownerID()
	nodes := make([]*grid.ClusterNodeInfo, 0, len(children))
	for _, child := range children {
		data, err := w.coord.Get(path.Join(registerPath, child))
		if err != nil {
			// the node may have left between list and read
			Logger.Debugf("[%s %s] skipping node %s: %v", w.role, w.uri, child, err)
			continue
		}
		node, err := grid.UnmarshalClusterNodeInfo(data, child)
		if err != nil {
			Logger.Warningf("[%s %s] skipping node %s: %v", w.role, w.uri, child, err)
			continue
		}
		node.IsOwner = owner != "" && owner == child
		nodes = append(nodes, node)
	}

	if w.members.Update(nodes) {
		Logger.Infof("[%s %s] membership changed: %d nodes", w.role, w.uri, len(nodes))
		w.notify()
	}
	return watch, nil
}

func (w *watcher) notify() {
	nodes := w.Nodes()
	w.handlersMu.RLock()
	handlers := append([]NodeChangedHandler(nil), w.handlers...)
	w.handlersMu.RUnlock()
	for _, h := range handlers {
		h(nodes)
	}
}

// requestResync asks the watch loop to reload immediately
func (w *watcher) requestResync() {
	select {
	case w.resync <- struct{}{}:
	default:
	}
}

// watchLoop reloads the membership on every watch notification or resync
// request. watch is the channel armed by the initial load.
func (w *watcher) watchLoop(watch <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-watch:
		case <-w.resync:
		}

		var err error
		watch, err = w.load()
		for err != nil {
			Logger.Warningf("[%s %s] reload failed, retrying in %s: %v", w.role, w.uri, w.opts.RetryBackoff, err)
			select {
			case <-w.stop:
				return
			case <-time.After(w.opts.RetryBackoff):
			}
			watch, err = w.load()
		}
	}
}

// sessionLoop forwards session events to onEvent
func (w *watcher) sessionLoop(events <-chan coord.SessionEvent, onEvent func(coord.SessionEvent)) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			Logger.Debugf("[%s %s] session event: %s", w.role, w.uri, ev.Type)
			onEvent(ev)
		}
	}
}

// shutdown stops all loops of the watcher
func (w *watcher) shutdown() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}
