// Package transport defines the interfaces of the RPC transport layer. It
// provides the contract between the client engine (rpc/client), the server
// dispatch (rpc/server) and the stream implementations (base, tcp, unix).
//
// Key Components:
//
//   - IConnection / IConnectionPool: Client side. A pool lends one connection per
//     destination; a connection sends asynchronously and reports completion through
//     SendCompleteFunc, inbound frames are pushed through ReceiveFunc. Responses are
//     correlated by the client engine, not by the transport.
//
//   - IRPCServerTransport: Server side. Receives frames and hands them to a
//     ServerHandleFunc, writing back whatever the handler returns.
//
//   - PoolFactory: Creates a pool per endpoint so the client engine stays
//     independent of the network protocol.
package transport
