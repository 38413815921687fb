package grid

import (
	"strings"
)

const (
	// DefaultScheme is used when a grid uri string carries no scheme
	DefaultScheme = "rpc"
	// DefaultRoot is the root name used when none is configured
	DefaultRoot = "grid"
)

// GridUri is the {root, proj, cluster} addressing triple of a routable cluster.
// All components are lower-cased and non-empty; use NewGridUri or ParseGridUri
// to construct one.
type GridUri struct {
	Scheme  string
	Root    string
	Proj    string
	Cluster string
}

// NewGridUri creates a GridUri with the default scheme. It fails with
// CodeClusterInvalidParam if any component is empty after trimming.
func NewGridUri(root, proj, cluster string) (GridUri, error) {
	u := GridUri{
		Scheme:  DefaultScheme,
		Root:    normalize(root),
		Proj:    normalize(proj),
		Cluster: normalize(cluster),
	}
	if !u.IsValid() {
		return GridUri{}, Errorf(CodeClusterInvalidParam, "invalid grid uri: root=%q proj=%q cluster=%q", root, proj, cluster)
	}
	return u, nil
}

// MustGridUri is like NewGridUri but panics on invalid input. Intended for
// package level variables and tests.
func MustGridUri(root, proj, cluster string) GridUri {
	u, err := NewGridUri(root, proj, cluster)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseGridUri parses "cluster.proj.root" or "scheme://cluster.proj.root".
// The cluster component may itself contain dots; the last two segments are
// always proj and root.
func ParseGridUri(s string) (GridUri, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return GridUri{}, NewError(CodeClusterInvalidParam, "empty grid uri")
	}

	scheme := DefaultScheme
	if idx := strings.Index(s, "://"); idx >= 0 {
		scheme = strings.ToLower(s[:idx])
		s = s[idx+3:]
		if scheme == "" {
			return GridUri{}, Errorf(CodeClusterInvalidParam, "invalid grid uri %q: empty scheme", s)
		}
	}
	s = strings.TrimSuffix(s, "/")

	rootIdx := strings.LastIndexByte(s, '.')
	if rootIdx <= 0 {
		return GridUri{}, Errorf(CodeClusterInvalidParam, "invalid grid uri %q: expected cluster.proj.root", s)
	}
	projIdx := strings.LastIndexByte(s[:rootIdx], '.')
	if projIdx <= 0 {
		return GridUri{}, Errorf(CodeClusterInvalidParam, "invalid grid uri %q: expected cluster.proj.root", s)
	}

	u, err := NewGridUri(s[rootIdx+1:], s[projIdx+1:rootIdx], s[:projIdx])
	if err != nil {
		return GridUri{}, err
	}
	u.Scheme = scheme
	return u, nil
}

// IsValid reports whether all components are set
func (u GridUri) IsValid() bool {
	return u.Root != "" && u.Proj != "" && u.Cluster != ""
}

// String returns the canonical form "cluster.proj.root" (empty if invalid)
func (u GridUri) String() string {
	if !u.IsValid() {
		return ""
	}
	return u.Cluster + "." + u.Proj + "." + u.Root
}

// URI returns the uri form "scheme://cluster.proj.root"
func (u GridUri) URI() string {
	scheme := u.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + u.String()
}

// RegisterPath returns the coordination service node under which the members
// of this cluster register themselves
func (u GridUri) RegisterPath() string {
	return "/proj-cpc/" + u.Proj + "/" + u.Cluster + "/register"
}

// NodePrefix returns the prefix for ephemeral sequential member nodes
func (u GridUri) NodePrefix() string {
	return u.RegisterPath() + "/s"
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
