package zk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/go-zookeeper/zk"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("coord")

// zkLogger routes the client library output into the coord logger
type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

// Coordinator implements coord.ICoordinator on ZooKeeper
type Coordinator struct {
	servers        []string
	sessionTimeout time.Duration
	retryBackoff   time.Duration

	mu        sync.Mutex
	conn      *zk.Conn
	connected chan struct{}
	events    coord.EventHub
	done      chan struct{}
	closeOnce sync.Once
}

// NewCoordinator creates a ZooKeeper coordinator. Connect must be called before use.
func NewCoordinator(servers []string, sessionTimeout, retryBackoff time.Duration) (*Coordinator, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("no zookeeper servers configured")
	}
	return &Coordinator{
		servers:        servers,
		sessionTimeout: sessionTimeout,
		retryBackoff:   retryBackoff,
		connected:      make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Connect dials the ensemble and blocks until a session is established. The
// client library keeps reconnecting on its own, Connect only logs every
// backoff interval until ctx is done.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn == nil {
		conn, events, err := zk.Connect(c.servers, c.sessionTimeout, zk.WithLogger(zkLogger{}))
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to connect to zookeeper %s: %w", strings.Join(c.servers, ","), err)
		}
		c.conn = conn
		go c.pump(events)
	}
	c.mu.Unlock()

	ticker := time.NewTicker(c.retryBackoff)
	defer ticker.Stop()
	for {
		select {
		case <-c.connected:
			return nil
		case <-c.done:
			return coord.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			Logger.Warningf("waiting for zookeeper session (%s)", strings.Join(c.servers, ","))
		}
	}
}

// pump translates session events of the client library
func (c *Coordinator) pump(events <-chan zk.Event) {
	var once sync.Once
	for ev := range events {
		if ev.Type != zk.EventSession {
			continue
		}
		switch ev.State {
		case zk.StateHasSession:
			once.Do(func() { close(c.connected) })
			Logger.Infof("zookeeper session established with %s", ev.Server)
			c.events.Publish(coord.SessionEvent{Type: coord.EventConnected})
		case zk.StateDisconnected:
			Logger.Warningf("zookeeper connection lost")
			c.events.Publish(coord.SessionEvent{Type: coord.EventDisconnected})
		case zk.StateExpired:
			Logger.Warningf("zookeeper session expired")
			c.events.Publish(coord.SessionEvent{Type: coord.EventExpired})
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see coord.ICoordinator)
// --------------------------------------------------------------------------

func (c *Coordinator) EnsurePath(path string, data []byte) error {
	conn, err := c.client()
	if err != nil {
		return err
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for i, seg := range segments {
		current += "/" + seg
		var nodeData []byte
		if i == len(segments)-1 {
			nodeData = data
		}
		_, err := conn.Create(current, nodeData, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return mapErr(err, current)
		}
	}
	return nil
}

func (c *Coordinator) CreateEphemeralSequential(prefix string, data []byte) (string, error) {
	conn, err := c.client()
	if err != nil {
		return "", err
	}
	path, err := conn.Create(prefix, data, zk.FlagEphemeral|zk.FlagSequence, zk.WorldACL(zk.PermAll))
	if err != nil {
		return "", mapErr(err, prefix)
	}
	return path, nil
}

func (c *Coordinator) ChildrenW(path string) ([]string, <-chan struct{}, error) {
	conn, err := c.client()
	if err != nil {
		return nil, nil, err
	}
	children, _, events, err := conn.ChildrenW(path)
	if err != nil {
		return nil, nil, mapErr(err, path)
	}
	ch := make(chan struct{})
	go func() {
		<-events
		close(ch)
	}()
	return children, ch, nil
}

func (c *Coordinator) Get(path string) ([]byte, error) {
	conn, err := c.client()
	if err != nil {
		return nil, err
	}
	data, _, err := conn.Get(path)
	if err != nil {
		return nil, mapErr(err, path)
	}
	return data, nil
}

func (c *Coordinator) Set(path string, data []byte) error {
	conn, err := c.client()
	if err != nil {
		return err
	}
	_, err = conn.Set(path, data, -1)
	return mapErr(err, path)
}

func (c *Coordinator) Exists(path string) (bool, error) {
	conn, err := c.client()
	if err != nil {
		return false, err
	}
	ok, _, err := conn.Exists(path)
	if err != nil {
		return false, mapErr(err, path)
	}
	return ok, nil
}

func (c *Coordinator) Delete(path string) error {
	conn, err := c.client()
	if err != nil {
		return err
	}
	return mapErr(conn.Delete(path, -1), path)
}

func (c *Coordinator) SessionEvents() <-chan coord.SessionEvent {
	return c.events.Subscribe()
}

func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		c.events.Close()
	})
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (c *Coordinator) client() (*zk.Conn, error) {
	select {
	case <-c.done:
		return nil, coord.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, fmt.Errorf("zookeeper not connected")
	}
	return c.conn, nil
}

// mapErr converts client library errors into the coord errors
func mapErr(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%w: %s", coord.ErrNoNode, path)
	case errors.Is(err, zk.ErrNodeExists):
		return fmt.Errorf("%w: %s", coord.ErrNodeExists, path)
	case errors.Is(err, zk.ErrClosing), errors.Is(err, zk.ErrConnectionClosed):
		return fmt.Errorf("%w: %v", coord.ErrClosed, err)
	default:
		return fmt.Errorf("zookeeper %s: %w", path, err)
	}
}
