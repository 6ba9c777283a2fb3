package transport

import (
	"errors"
	"github.com/ValentinKolb/dMX/rpc/common"
)

// ErrServerClosed is returned by Listen after Close
var ErrServerClosed = errors.New("transport: server closed")

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one incoming frame.
// It is called by the server transport with the group id of the frame and
// returns the response payload.
type ServerHandleFunc func(groupID uint64, req []byte) (resp []byte)

// IRPCServerTransport is the listening side of a transport
type IRPCServerTransport interface {
	// RegisterHandler sets the handler for incoming frames. Must be called
	// before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen accepts requests until Close is called. It returns
	// ErrServerClosed after Close and any other error if listening fails.
	Listen(config common.ServerConfig) error
	// Close stops the listener and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the dialing side of a transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request for groupID and waits for the response
	Send(groupID uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
