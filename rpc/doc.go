// Package rpc provides the remote procedure call framework of gridRPC. It is
// the communication layer between clients and the servers of a grid.
//
// The package is organized into several subpackages:
//
//   - common: the Message envelope, signals, configuration structures and logging.
//
//   - transport: connection pools and server transports over length prefixed
//     frames (TCP, Unix sockets), plus the HTTP admin endpoint.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: transactions, communicators and object proxies. Calls are
//     correlated by callback id, retried on closed connections and failed sends,
//     and routed to the nodes of a grid by the cluster invoker.
//
//   - server: servants, logical servers bound to a grid and the host that
//     dispatches inbound frames to them.
package rpc
