// Package tcp implements the TCP transport for the RPC layer of dMX. It
// provides the connectors for the framed connections of package base and
// applies the TCP and socket options (no delay, keep alive, linger, buffer
// sizes) of the configuration to every dialed and accepted connection.
//
// Key Components:
//
//   - clientConnector: TCP specific implementation of base.IClientConnector
//
//   - serverConnector: TCP specific implementation of base.IServerConnector
package tcp
