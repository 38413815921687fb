// Package server implements the server side of the RPC framework: servants,
// logical servers bound to a grid and the host that binds them to a transport.
//
// Key Components:
//
//   - IServant: handles all calls addressed to one servant name. NewServant,
//     NewMethodServant and TypedMethod build servants from plain functions.
//
//   - RPCServer: a set of servants bound to a grid uri. CallServantMethod stamps
//     every request with a trace id (tid) and turns missing servants, errors,
//     panics and empty results into invalid responses that carry the
//     correlation id of the request. StartClusterNode announces the server as
//     node of its grid; afterwards the selection helpers (Master, ByHashKey, ...)
//     work on the membership seen by the node.
//
//   - RPCServerHost: owns the transport. Frames are decoded, pings are answered
//     directly and requests are routed by servant name to the hosting server.
//     Serve also starts the admin endpoint and the performance recorder.
//
//   - PerformanceRecorder: aggregates calls per grid, host, servant and method
//     and flushes them periodically to the configured sinks (LogSink, BoltSink).
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:7001",
//	  AdvertiseHost: "10.0.0.1",
//	  AdvertisePort: 7001,
//	  ClusterMode:   "cluster-hash",
//	  LogLevel:      "info",
//	}
//
//	host, _ := server.NewRPCServerHost(config, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
//	orders, _ := server.NewRPCServer("orders", grid.MustGridUri("root", "shop", "orders"), "10.0.0.1:7001", host.Recorder())
//	_ = orders.RegisterServant(server.NewKVServant(server.NewKVStore()))
//	_ = host.AddServer(orders)
//	host.SetCoordinator(coord)
//
//	if err := host.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Servants are called concurrently, one goroutine per request frame. Serve
//	must be called only once.
package server
