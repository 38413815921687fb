// Package common provides core data structures and utilities shared by the
// client and server side of gridRPC.
//
// Key Components:
//
//   - Message: the single envelope of requests and responses. The signal
//     prefix tells requests ("__rpccall:") from responses ("__rpccallret:").
//     Factory functions create requests, responses, invalid responses and pings.
//
//   - CommunicatorConfig: the transport policy of a client (pool size,
//     timeouts, retries). Its JSON form is stored in the grid so all clients of
//     a grid share it.
//
//   - ServerConfig / ClientConfig: process level configuration, filled by the
//     command line from flags and GRID_ environment variables.
//
//   - Logger: custom logging implementation that plugs into Dragonboat's logger
//     registry, providing consistent formatting and one level for all packages.
package common
