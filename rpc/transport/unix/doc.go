// Package unix implements the RPC transport of dMX over Unix domain sockets,
// for processes running on the same machine. It only provides the connectors;
// framing, request correlation and reconnects come from package base.
//
// The server removes a stale socket file before listening and unlinks the
// socket again when it is closed.
package unix
