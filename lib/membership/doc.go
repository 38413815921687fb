// Package membership implements the live node list of a cluster, the node
// selection strategies and the consistent-hash bucket table used by the
// ClusterWithHash mode.
//
// Both sides of the system (the server side agent announcing a node and the
// client side cluster view) use the same Membership type, so the rebalancing
// routine exists exactly once.
//
// Key Components:
//
//   - Rebalance: A pure function that takes the current node list and bucket
//     table plus an incoming node list and returns the new list and table.
//     Growth only moves buckets onto the new nodes, shrink only moves the
//     buckets of the removed nodes.
//
//   - View: An immutable snapshot of {nodes, buckets}. Readers take a snapshot
//     and run the selection functions on it without holding any lock.
//
//   - Membership: Owns the current View and swaps it under a dedicated mutex on
//     every membership change notification.
//
// Lookups that find no owner (unassigned bucket, owner no longer live, empty
// cluster) return an error with grid.CodeClusterNoNode. Callers should treat
// this as routable-but-currently-unavailable.
package membership
