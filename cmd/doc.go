// Package cmd implements the command-line interface of gridRPC. It provides
// commands for running a server host and for calling grids as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts a server host with the built-in servants
//   - call: raw calls, pings and membership listings (call, ping, nodes)
//   - kv: key-value operations against the built-in kv servant
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the GRID_ prefix
// (e.g. GRID_COORD_SERVERS=zk1:2181,zk2:2181). .env and .env.local are loaded
// on startup. See grid -help for a list of all commands.
package cmd
