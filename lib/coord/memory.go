package coord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("coord")

// memNode is one node of the in-memory tree. owner is the session that created
// an ephemeral node, 0 for persistent nodes.
type memNode struct {
	data  []byte
	owner int64
}

// memTree is the namespace shared by all sessions of a MemoryCoordinator
type memTree struct {
	nodes *xsync.MapOf[string, memNode]

	// mu serializes structural changes so watches fire consistently
	mu       sync.Mutex
	watches  map[string][]chan struct{}
	seq      map[string]int64
	sessions atomic.Int64
}

// MemoryCoordinator is an in-process ICoordinator. It is used when no
// coordination servers are configured and by tests.
type MemoryCoordinator struct {
	tree    *memTree
	session atomic.Int64
	events  EventHub
	closed  atomic.Bool
}

// NewMemoryCoordinator creates a coordinator with a fresh, empty namespace
func NewMemoryCoordinator() *MemoryCoordinator {
	tree := &memTree{
		nodes:   xsync.NewMapOf[string, memNode](),
		watches: make(map[string][]chan struct{}),
		seq:     make(map[string]int64),
	}
	tree.nodes.Store("/", memNode{})
	return newMemorySession(tree)
}

// NewSession returns a coordinator with its own session on the same namespace
func (m *MemoryCoordinator) NewSession() *MemoryCoordinator {
	return newMemorySession(m.tree)
}

func newMemorySession(tree *memTree) *MemoryCoordinator {
	m := &MemoryCoordinator{tree: tree}
	m.session.Store(tree.sessions.Add(1))
	return m
}

// ExpireSession ends the current session: all its ephemeral nodes are removed,
// subscribers see EventExpired followed by EventConnected for the new session.
func (m *MemoryCoordinator) ExpireSession() {
	if m.closed.Load() {
		return
	}
	m.dropEphemerals()
	m.session.Store(m.tree.sessions.Add(1))

	Logger.Infof("memory session expired, new session %d", m.session.Load())
	m.events.Publish(SessionEvent{Type: EventExpired})
	m.events.Publish(SessionEvent{Type: EventConnected})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ICoordinator)
// --------------------------------------------------------------------------

func (m *MemoryCoordinator) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.events.Publish(SessionEvent{Type: EventConnected})
	return nil
}

func (m *MemoryCoordinator) EnsurePath(path string, data []byte) error {
	if err := m.check(path); err != nil {
		return err
	}
	t := m.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for i, seg := range segments {
		current += "/" + seg
		if _, ok := t.nodes.Load(current); ok {
			continue
		}
		node := memNode{}
		if i == len(segments)-1 {
			node.data = clone(data)
		}
		t.nodes.Store(current, node)
		t.fire(parentOf(current))
	}
	return nil
}

func (m *MemoryCoordinator) CreateEphemeralSequential(prefix string, data []byte) (string, error) {
	if err := m.check(prefix); err != nil {
		return "", err
	}
	t := m.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := parentOf(prefix)
	if _, ok := t.nodes.Load(parent); !ok {
		return "", fmt.Errorf("%w: %s", ErrNoNode, parent)
	}
	seq := t.seq[parent]
	t.seq[parent] = seq + 1

	path := fmt.Sprintf("%s%010d", prefix, seq)
	t.nodes.Store(path, memNode{data: clone(data), owner: m.session.Load()})
	t.fire(parent)
	return path, nil
}

func (m *MemoryCoordinator) ChildrenW(path string) ([]string, <-chan struct{}, error) {
	if err := m.check(path); err != nil {
		return nil, nil, err
	}
	t := m.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes.Load(path); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	children := t.children(path)
	ch := make(chan struct{})
	t.watches[path] = append(t.watches[path], ch)
	return children, ch, nil
}

func (m *MemoryCoordinator) Get(path string) ([]byte, error) {
	if err := m.check(path); err != nil {
		return nil, err
	}
	node, ok := m.tree.nodes.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	return clone(node.data), nil
}

func (m *MemoryCoordinator) Set(path string, data []byte) error {
	if err := m.check(path); err != nil {
		return err
	}
	var found bool
	m.tree.nodes.Compute(path, func(old memNode, loaded bool) (memNode, bool) {
		if !loaded {
			return old, true
		}
		found = true
		old.data = clone(data)
		return old, false
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	return nil
}

func (m *MemoryCoordinator) Exists(path string) (bool, error) {
	if err := m.check(path); err != nil {
		return false, err
	}
	_, ok := m.tree.nodes.Load(path)
	return ok, nil
}

func (m *MemoryCoordinator) Delete(path string) error {
	if err := m.check(path); err != nil {
		return err
	}
	t := m.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes.Load(path); !ok {
		return fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	if len(t.children(path)) > 0 {
		return fmt.Errorf("coord: node %s has children", path)
	}
	t.nodes.Delete(path)
	t.fire(parentOf(path))
	return nil
}

func (m *MemoryCoordinator) SessionEvents() <-chan SessionEvent {
	return m.events.Subscribe()
}

func (m *MemoryCoordinator) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.dropEphemerals()
	m.events.Close()
	return nil
}

// --------------------------------------------------------------------------
// Internals
// --------------------------------------------------------------------------

func (m *MemoryCoordinator) check(path string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !strings.HasPrefix(path, "/") || (len(path) > 1 && strings.HasSuffix(path, "/")) {
		return fmt.Errorf("coord: invalid path %q", path)
	}
	return nil
}

// dropEphemerals removes all ephemeral nodes of the current session
func (m *MemoryCoordinator) dropEphemerals() {
	t := m.tree
	session := m.session.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	var dropped []string
	t.nodes.Range(func(path string, node memNode) bool {
		if node.owner == session {
			dropped = append(dropped, path)
		}
		return true
	})
	for _, path := range dropped {
		t.nodes.Delete(path)
		t.fire(parentOf(path))
	}
}

// children returns the sorted child names of path. t.mu must be held.
func (t *memTree) children(path string) []string {
	prefix := path + "/"
	if path == "/" {
		prefix = "/"
	}
	var names []string
	t.nodes.Range(func(p string, _ memNode) bool {
		if p != "/" && strings.HasPrefix(p, prefix) {
			rest := p[len(prefix):]
			if rest != "" && !strings.Contains(rest, "/") {
				names = append(names, rest)
			}
		}
		return true
	})
	sort.Strings(names)
	return names
}

// fire triggers and clears the child watches of path. t.mu must be held.
func (t *memTree) fire(path string) {
	for _, ch := range t.watches[path] {
		close(ch)
	}
	delete(t.watches, path)
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}
