package coord

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoNode is returned for operations on nodes that do not exist
	ErrNoNode = errors.New("coord: node does not exist")
	// ErrNodeExists is returned when creating a node that already exists
	ErrNodeExists = errors.New("coord: node already exists")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("coord: coordinator closed")
)

// EventType is the kind of a session event
type EventType int

const (
	// EventConnected is emitted when a session is (re-)established
	EventConnected EventType = iota
	// EventDisconnected is emitted when the connection dropped but the session may survive
	EventDisconnected
	// EventExpired is emitted when the session ended; all ephemeral nodes of it are gone
	EventExpired
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SessionEvent reports a change of the session state
type SessionEvent struct {
	Type EventType
}

// ICoordinator is the coordination service used by the cluster agents and clients
type ICoordinator interface {
	// Connect establishes the session. It retries until ctx is done.
	Connect(ctx context.Context) error

	// EnsurePath creates path and all missing parents as persistent nodes. data
	// is stored on path only if it is created.
	EnsurePath(path string, data []byte) error

	// CreateEphemeralSequential creates an ephemeral node named prefix followed by
	// a generated sequence number and returns the full path
	CreateEphemeralSequential(prefix string, data []byte) (string, error)

	// ChildrenW returns the names of the children of path and a channel closed
	// on the next change of the children
	ChildrenW(path string) ([]string, <-chan struct{}, error)

	// Get returns the data of path
	Get(path string) ([]byte, error)

	// Set replaces the data of path
	Set(path string, data []byte) error

	// Exists reports whether path exists
	Exists(path string) (bool, error)

	// Delete removes path
	Delete(path string) error

	// SessionEvents returns a new subscription to session events. The channel
	// is closed by Close.
	SessionEvents() <-chan SessionEvent

	// Close ends the session
	Close() error
}

// --------------------------------------------------------------------------
// Event fan-out (shared by the implementations)
// --------------------------------------------------------------------------

// EventHub fans session events out to all subscriptions
type EventHub struct {
	mu     sync.Mutex
	chans  []chan SessionEvent
	closed bool
}

// Subscribe returns a new subscription. After Close it returns a closed channel.
func (h *EventHub) Subscribe() <-chan SessionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan SessionEvent, 16)
	if h.closed {
		close(ch)
		return ch
	}
	h.chans = append(h.chans, ch)
	return ch
}

// Publish delivers ev to every subscription. It never blocks, slow
// subscribers lose events.
func (h *EventHub) Publish(ev SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.chans {
		select {
		case ch <- ev:
		default:
			Logger.Warningf("dropped session event %s for a slow subscriber", ev.Type)
		}
	}
}

// Close closes all subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.chans {
		close(ch)
	}
	h.chans = nil
}
