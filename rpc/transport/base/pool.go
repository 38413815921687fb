package base

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
)

// connectionPool lends at most size connections to one endpoint. Idle
// connections are kept in a buffered channel; slots bounds the number of open
// connections (idle + lent).
type connectionPool struct {
	endpoint  string
	connector IClientConnector
	transport common.TransportConfig
	config    common.CommunicatorConfig

	idle  chan *asyncConnection
	slots chan struct{}

	onReceive      transport.ReceiveFunc
	onSendComplete transport.SendCompleteFunc

	mu     sync.Mutex
	closed bool
}

// -----------------------------------------------------------
// Pool Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewPoolFactory creates a transport.PoolFactory dialing through connector
func NewPoolFactory(connector IClientConnector, transportConfig common.TransportConfig) transport.PoolFactory {
	return func(endpoint string, config common.CommunicatorConfig, onReceive transport.ReceiveFunc, onSendComplete transport.SendCompleteFunc) (transport.IConnectionPool, error) {
		if endpoint == "" {
			return nil, fmt.Errorf("no endpoint provided")
		}
		config = config.WithDefaults()

		Logger.Debugf("created %s connection pool for %s (size %d)", connector.GetName(), endpoint, config.ConnectionPoolSize)
		return &connectionPool{
			endpoint:       endpoint,
			connector:      connector,
			transport:      transportConfig,
			config:         config,
			idle:           make(chan *asyncConnection, config.ConnectionPoolSize),
			slots:          make(chan struct{}, config.ConnectionPoolSize),
			onReceive:      onReceive,
			onSendComplete: onSendComplete,
		}, nil
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnectionPool)
// --------------------------------------------------------------------------

func (p *connectionPool) Endpoint() string {
	return p.endpoint
}

func (p *connectionPool) Acquire(timeout time.Duration) (transport.IConnection, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("pool for %s is closed", p.endpoint)
	}

	// Prefer an idle connection
	for {
		select {
		case c := <-p.idle:
			if c.Closed() {
				p.discard()
				continue
			}
			return c, nil
		default:
		}
		break
	}

	// Open a new connection if a slot is free
	select {
	case p.slots <- struct{}{}:
		return p.open()
	default:
	}

	// Exhausted, wait for a release
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case c := <-p.idle:
			if c.Closed() {
				p.discard()
				// the freed slot can be used right away
				select {
				case p.slots <- struct{}{}:
					return p.open()
				default:
				}
				continue
			}
			return c, nil
		case p.slots <- struct{}{}:
			return p.open()
		case <-timer.C:
			return nil, fmt.Errorf("no connection to %s available within %s", p.endpoint, timeout)
		}
	}
}

func (p *connectionPool) Release(conn transport.IConnection) {
	c, ok := conn.(*asyncConnection)
	if !ok || c == nil {
		return
	}

	if c.Closed() || p.isClosed() {
		_ = c.Close()
		p.discard()
		return
	}

	select {
	case p.idle <- c:
	default:
		// cannot happen while slots bounds the connections, close defensively
		_ = c.Close()
		p.discard()
	}
}

func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
			p.discard()
		default:
			Logger.Debugf("closed connection pool for %s", p.endpoint)
			return nil
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// open dials a new connection for an already reserved slot
func (p *connectionPool) open() (transport.IConnection, error) {
	conn, err := dial(p.connector, p.endpoint, p.config.ConnectTimeout, p.transport)
	if err != nil {
		p.discard()
		return nil, err
	}
	return newAsyncConnection(conn, p.endpoint, p.config.RequestTimeout, p.onReceive, p.onSendComplete), nil
}

// discard frees the slot of a connection that left the pool
func (p *connectionPool) discard() {
	select {
	case <-p.slots:
	default:
	}
}

func (p *connectionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
