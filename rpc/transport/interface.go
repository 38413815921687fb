package transport

import (
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a frame is received.
// A nil response means nothing is written back.
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called for every received frame, concurrently
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and blocks until Close is called
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and closes the listener
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ReceiveFunc is invoked for every inbound frame of a client connection.
// It runs on the reader goroutine of the connection.
type ReceiveFunc func(conn IConnection, data []byte)

// SendCompleteFunc is invoked once an asynchronous send finished. state is the
// value passed to SendAsync, err is nil on success. It runs on the writer
// goroutine of the connection.
type SendCompleteFunc func(conn IConnection, state any, err error)

// IConnection is a single duplex connection to an endpoint
type IConnection interface {
	// Endpoint returns the remote endpoint
	Endpoint() string
	// SendAsync queues data for sending and returns immediately. It returns false
	// if the connection is already closed; the completion callback is then never invoked.
	SendAsync(data []byte, state any) bool
	// Closed reports whether the connection is closed
	Closed() bool
	// Close closes the connection
	Close() error
}

// IConnectionPool lends connections to one endpoint
type IConnectionPool interface {
	// Endpoint returns the endpoint of the pool
	Endpoint() string
	// Acquire lends a connection, dialing a new one if the pool is not exhausted.
	// It blocks for at most timeout.
	Acquire(timeout time.Duration) (IConnection, error)
	// Release returns a lent connection. Closed connections are discarded.
	Release(conn IConnection)
	// Close closes all connections of the pool
	Close() error
}

// PoolFactory creates the connection pool for an endpoint. The callbacks are
// wired into every connection of the pool.
type PoolFactory func(endpoint string, config common.CommunicatorConfig, onReceive ReceiveFunc, onSendComplete SendCompleteFunc) (IConnectionPool, error)
