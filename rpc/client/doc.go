// Package client implements the calling side of the grid RPC framework:
// correlation of asynchronous responses, the retry policy and node selection.
//
// Key Components:
//
//   - Transaction: one outstanding call. It carries the process wide unique
//     correlation id (cbId), the mode bits (ModeSendConsistence, ModeWaitingAck)
//     and the send / ack signals set by the transport callbacks.
//
//   - Communicator: owns one connection pool per endpoint and the transaction
//     table. Transactions waiting for an ack are registered before the send, so
//     a response can always be matched; responses for unknown ids are dropped.
//     A sweep removes transactions that expired (plus slack) without response.
//
//   - ObjectProxy: calls one servant on one endpoint. A call makes at most
//     1 + RetryTimes send attempts: a missing connection fails at once, a closed
//     pooled connection or an unconfirmed send is retried. After the send the
//     proxy waits RequestWaitingAckTimeout for the response. Invoke[T] encodes
//     arguments and results as JSON.
//
//   - Registry and ClusterInvoker: a process wide cache of cluster clients (per
//     grid) and communicators (per node), and the selection helpers that turn a
//     routing decision into an ObjectProxy.
//
// Usage Example:
//
//	registry := client.NewRegistry()
//	defer registry.Close()
//
//	invoker, _ := client.NewClusterInvoker(registry, uri, grid.ModeClusterWithHash,
//		client.NewClientFactory(coordinator, cluster.Options{}, 10*time.Second),
//		client.NewCommFactory(serializer.NewBinarySerializer(), tcp.NewTCPPoolFactory(common.DefaultTransportConfig())))
//
//	proxy, _ := invoker.ByHashKey("kv", "user:42")
//	value, err := client.Invoke[string](proxy, "get", "user:42")
//
// Errors:
//
//	All failures are *grid.Error values. Callers should branch on
//	grid.CodeOf(err).Category(): transport (no connection), send (retry budget
//	exhausted), ack (no response, invalid response) or membership (no node).
package client
