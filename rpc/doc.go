// Package rpc connects the processes of a dMX group across process and
// machine boundaries.
//
// The package is organized into several subpackages:
//
//   - common: The wire Message, the configuration structures and the logger
//     setup shared by all packages.
//
//   - serializer: Conversion between Message and bytes (binary, json, gob).
//
//   - transport: Framed byte transports with pluggable implementations
//     (tcp, unix sockets, http).
//
//   - server: Receives the messages of the peers of one process and pushes
//     them into its inbox; answers status queries.
//
//   - client: Sends messages to one remote process and queries its status.
//
//   - network: Implements mutex.INetwork on top of server and clients, so a
//     node.Process runs unchanged over memory or over the wire.
package rpc
