// Package base provides the framed connection transport shared by the tcp
// and unix transports of dMX. It implements the protocol independent parts
// of client and server; the sub packages only contribute connectors that
// dial, listen and tune their sockets.
//
// Frame format (big endian):
//
//	[0:8]    groupID
//	[8:16]   requestID
//	[16:20]  payload length
//	[20:]    payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Protocol specific dial, listen and
//     connection upgrade.
//
//   - clientTransport: Keeps ConnectionsPerEndpoint connections per endpoint
//     and selects them round robin. Requests are correlated with their
//     responses by request id, so several requests can be in flight on one
//     connection. A reader goroutine per connection redials a broken
//     connection with backoff and fails the requests that were waiting on it.
//     Failed requests are retried RetryCount times with a fresh request id.
//
//   - serverTransport: Accepts connections and handles up to WorkersPerConn
//     requests per connection concurrently. Read buffers come from a
//     sync.Pool. Connections of idle peers are never timed out; Close
//     terminates the listener and every open connection.
//
// All public methods are safe for concurrent use.
package base
