// Package cmd implements the command-line interface of dMX. It provides a
// hierarchical command structure for running processes of a group and for
// inspecting them.
//
// The package is organized into several subpackages:
//
//   - serve: Run one process over the network (tcp, unix or http)
//   - simulate: Run a whole group in memory and print a report of the grants
//   - status: Query running processes for their clock, state and peer table
//   - trace: List and verify the grant traces recorded by simulate --trace
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DMX_<FLAG> (dashes become
// underscores), .env and .env.local files are loaded on start.
//
// See dmx -help for a list of all commands.
package cmd
