package grid

import (
	"fmt"
	"strings"
)

// ClusterMode describes how a cluster routes calls to its members. It is fixed
// for the lifetime of a cluster client or server.
type ClusterMode int

const (
	ModeNone            ClusterMode = iota // single node, no membership
	ModeMasterSlave                        // first node is master, the rest are slaves
	ModeCluster                            // stateless cluster, mod or random routing
	ModeClusterWithHash                    // bucket table routing, stable under growth
)

// String returns the string representation of a ClusterMode
func (m ClusterMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeMasterSlave:
		return "master-slave"
	case ModeCluster:
		return "cluster"
	case ModeClusterWithHash:
		return "cluster-hash"
	default:
		return "unknown"
	}
}

// ParseClusterMode converts a string to a ClusterMode
func ParseClusterMode(s string) (ClusterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "master-slave", "masterslave":
		return ModeMasterSlave, nil
	case "cluster":
		return ModeCluster, nil
	case "cluster-hash", "clusterwithhash", "hash":
		return ModeClusterWithHash, nil
	default:
		return ModeNone, fmt.Errorf("invalid cluster mode: %s. must be one of none, master-slave, cluster, cluster-hash", s)
	}
}
