// Package server implements the receiving side of the RPC layer of dMX. An
// RPCServer serves exactly one process: it accepts frames of its group,
// decodes them and hands them to an adapter.
//
// Key Components:
//
//   - IRPCServerAdapter: Contract of the adapters. Each adapter handles one
//     family of message types and returns the response message.
//
//   - NewProtocolServerAdapter: Validates REQUEST, ACK and RELEASE messages
//     (target must be the served process, the sender a different member of
//     the group) and pushes them into the inbox of the process. The reply
//     only confirms the delivery; protocol ACKs travel as separate messages.
//
//   - NewStatusServerAdapter: Answers status queries with a snapshot of the
//     engine (clock, state, peer table).
//
//   - NewRPCServer: Creates a server with the given transport and serializer.
//
// The protocol adapter never takes the engine lock. A process holds its lock
// while it sends, so a handler waiting for the lock of its own process could
// deadlock two processes sending to each other.
package server
