// Package coord defines the coordination service used for cluster membership
// and provides an in-process implementation.
//
// The coordination service is a hierarchical namespace of nodes. Servers
// announce themselves with an ephemeral sequential node below the register path
// of their grid (see grid.GridUri.RegisterPath). The node disappears when the
// session of its creator ends, and its generated name becomes the instance id
// of the server.
//
// Implementations:
//
//   - MemoryCoordinator: a process local tree. Several sessions can share one
//     tree (NewSession), which lets tests run agents and clients against the
//     same namespace and simulate session loss with ExpireSession.
//
//   - zk.Coordinator (package coord/zk): ZooKeeper via github.com/go-zookeeper/zk.
//
// Watches are one-shot: the channel returned by ChildrenW is closed on the next
// change of the children of the watched node (or when the session ends) and the
// caller has to re-arm it.
package coord
