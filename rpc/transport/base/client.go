package base

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrConnectionClosed is reported to pending sends of a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// sendItem is one queued asynchronous send
type sendItem struct {
	data  []byte
	state any
}

// sendQueueSize bounds the number of queued sends per connection
const sendQueueSize = 256

// asyncConnection is a duplex connection with a dedicated reader and writer
// goroutine. Sends are queued and confirmed through the completion callback,
// inbound frames are pushed to the receive callback.
type asyncConnection struct {
	conn     net.Conn
	endpoint string

	sendCh chan sendItem
	stopCh chan struct{} // closed exactly once by Close
	closed atomic.Bool
	once   sync.Once

	writeTimeout   time.Duration
	onReceive      transport.ReceiveFunc
	onSendComplete transport.SendCompleteFunc
}

// newAsyncConnection wraps an established net.Conn and starts its goroutines
func newAsyncConnection(conn net.Conn, endpoint string, writeTimeout time.Duration, onReceive transport.ReceiveFunc, onSendComplete transport.SendCompleteFunc) *asyncConnection {
	c := &asyncConnection{
		conn:           conn,
		endpoint:       endpoint,
		sendCh:         make(chan sendItem, sendQueueSize),
		stopCh:         make(chan struct{}),
		writeTimeout:   writeTimeout,
		onReceive:      onReceive,
		onSendComplete: onSendComplete,
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *asyncConnection) Endpoint() string {
	return c.endpoint
}

func (c *asyncConnection) SendAsync(data []byte, state any) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.sendCh <- sendItem{data: data, state: state}:
		return true
	case <-c.stopCh:
		return false
	}
}

func (c *asyncConnection) Closed() bool {
	return c.closed.Load()
}

func (c *asyncConnection) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		err = c.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeLoop writes queued frames and reports every completion
func (c *asyncConnection) writeLoop() {
	for {
		select {
		case item := <-c.sendCh:
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			err := writeFrame(c.conn, item.data)
			if c.onSendComplete != nil {
				c.onSendComplete(c, item.state, err)
			}
			if err != nil {
				Logger.Warningf("write to %s failed: %v", c.endpoint, err)
				_ = c.Close()
			}
		case <-c.stopCh:
			c.drain()
			return
		}
	}
}

// drain fails all sends that were queued when the connection closed
func (c *asyncConnection) drain() {
	for {
		select {
		case item := <-c.sendCh:
			if c.onSendComplete != nil {
				c.onSendComplete(c, item.state, ErrConnectionClosed)
			}
		default:
			return
		}
	}
}

// readLoop reads frames until the connection fails and hands them to the receive callback
func (c *asyncConnection) readLoop() {
	defer c.Close()
	for {
		// a fresh buffer per frame, the callback may retain the data
		data, err := readFrame(c.conn, nil)
		if err != nil {
			if !c.closed.Load() {
				Logger.Debugf("connection to %s closed: %v", c.endpoint, err)
			}
			return
		}
		if c.onReceive != nil {
			c.onReceive(c, data)
		}
	}
}

// dial establishes and upgrades a new connection through the connector
func dial(connector IClientConnector, endpoint string, timeout time.Duration, config common.TransportConfig) (net.Conn, error) {
	conn, err := connector.Connect(endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", endpoint, err)
	}

	if err := connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", endpoint, err)
	}
	return conn, nil
}
