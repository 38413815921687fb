// Package http implements the admin HTTP surface of a grid server process.
// RPC traffic itself runs over the stream transports (tcp, unix); this package
// only exposes read-only operational endpoints.
//
// Endpoints:
//
//   - GET /metrics: all VictoriaMetrics counters and summaries of the process
//     (dispatch counts, failures, latency, client retries and ack timeouts) in
//     Prometheus text format.
//
//   - GET /nodes, GET /nodes/{server}: the current membership of every hosted
//     server as seen by its cluster agent.
//
//   - GET /healthz: liveness probe.
//
// When started with debug enabled every request is logged by loggerMiddleware.
package http
