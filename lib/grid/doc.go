// Package grid holds the shared vocabulary of the RPC grid: the addressing
// triple of a routable cluster (GridUri), the identity of a single cluster
// member (ClusterNodeInfo), the cluster operating modes and the result codes
// that cross every package boundary.
//
// Key Components:
//
//   - GridUri: The {root, proj, cluster} triple. Every component is lower-cased
//     and non-empty, so an invalid GridUri can never be constructed. The canonical
//     string form is "cluster.proj.root", the URI form "rpc://cluster.proj.root".
//
//   - ClusterNodeInfo: A registered server process. The InstanceNodeID is assigned
//     by the coordination service (ephemeral sequential node name) and is the
//     identity used for routing and bucket ownership.
//
//   - ClusterMode: None, MasterSlave, Cluster and ClusterWithHash.
//
//   - Error / Code: Integer result codes grouped by category. Callers branch on
//     Code.Category() unless an exact value is part of a documented contract.
//
// Membership storage layout in the coordination service:
//
//	/proj-cpc/{proj}/{cluster}/register       (data: cluster communicator config, JSON)
//	/proj-cpc/{proj}/{cluster}/register/sNNN  (ephemeral sequential, data: ClusterNodeInfo JSON)
package grid
