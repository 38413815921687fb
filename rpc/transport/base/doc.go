// Package base provides the stream transport shared by the tcp and unix
// packages. It implements framing, the client connection pool and the server
// accept loop independent of the specific network protocol.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     (dial, listen, socket tuning) that allow extending the base transport with
//     different network protocols.
//
//   - asyncConnection: A duplex client connection with one writer goroutine
//     (queued sends, completion callback) and one reader goroutine (inbound frames
//     pushed to the receive callback). Correlation of responses is left to the caller.
//
//   - connectionPool: Lends at most ConnectionPoolSize connections per endpoint,
//     dialing lazily and discarding closed connections on acquire and release.
//
//   - serverTransport: Accepts connections and processes frames with a bounded
//     number of workers per connection.
//
// Frame format: 2 byte magic, 4 byte big endian length, payload. Header and
// payload are written with net.Buffers to combine them into a single write.
//
// Thread Safety:
//
//	All public methods are thread-safe. Callbacks run on the reader / writer
//	goroutine of the connection and must not block for long.
package base
