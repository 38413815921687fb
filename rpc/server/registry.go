package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// ServantRegistry maps servant names (case-insensitive) to servants
type ServantRegistry struct {
	servants *xsync.MapOf[string, IServant]
}

// NewServantRegistry creates an empty registry
func NewServantRegistry() *ServantRegistry {
	return &ServantRegistry{servants: xsync.NewMapOf[string, IServant]()}
}

// Register adds a servant. Names must be unique.
func (r *ServantRegistry) Register(servant IServant) error {
	if servant == nil || strings.TrimSpace(servant.Name()) == "" {
		return fmt.Errorf("servant without name")
	}
	if _, loaded := r.servants.LoadOrStore(strings.ToLower(servant.Name()), servant); loaded {
		return fmt.Errorf("servant %s already registered", servant.Name())
	}
	return nil
}

// Lookup returns the servant registered under name
func (r *ServantRegistry) Lookup(name string) (IServant, bool) {
	return r.servants.Load(strings.ToLower(name))
}

// Names returns the sorted names of all servants
func (r *ServantRegistry) Names() []string {
	names := make([]string, 0, r.servants.Size())
	r.servants.Range(func(_ string, s IServant) bool {
		names = append(names, s.Name())
		return true
	})
	sort.Strings(names)
	return names
}
