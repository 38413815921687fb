// Package tcp implements TCP socket-based transport for the grid RPC system.
// It provides concrete implementations of the base package's connector
// interfaces and applies the TCPConf / SocketConf settings to every dialed or
// accepted connection.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector,
//     used through NewTCPPoolFactory by the client communicator.
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector.
//
// The default server buffer size is set to 512 KB with 64 workers per connection.
package tcp
