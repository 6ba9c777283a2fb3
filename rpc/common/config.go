package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport tuning shared by client and server
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes (ignored for http)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific options (only used by the tcp transport)
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	// Endpoint is the address the transport listens on (host:port or socket path)
	Endpoint string
	// WorkersPerConn limits the concurrent requests handled per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers
	BufferSize int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of one served process.
type ServerConfig struct {
	// NodeID is the id of the served process
	NodeID int
	// Peers lists the endpoints of all processes, indexed by process id
	Peers []string
	// GroupID identifies the mutual exclusion group; frames for other groups are rejected
	GroupID uint64

	Transport     ServerTransportConfig
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// Validate checks the consistency of the configuration
func (c *ServerConfig) Validate() error {
	if len(c.Peers) == 0 {
		return fmt.Errorf("no peers configured")
	}
	if c.NodeID < 0 || c.NodeID >= len(c.Peers) {
		return fmt.Errorf("node id %d not in [0, %d)", c.NodeID, len(c.Peers))
	}
	if c.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Process")
	addField("Node ID", strconv.Itoa(c.NodeID))
	addField("Group ID", strconv.FormatUint(c.GroupID, 10))

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Workers Per Conn", strconv.Itoa(max(1, c.Transport.WorkersPerConn)))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Peers")
	for i, endpoint := range c.Peers {
		name := strconv.Itoa(i)
		if i == c.NodeID {
			name += " (self)"
		}
		addField(name, endpoint)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the connection to one peer
type ClientConfig struct {
	GroupID       uint64
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Group ID", strconv.FormatUint(c.GroupID, 10))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// ForPeer returns a copy of the configuration that dials endpoint only
func (c ClientConfig) ForPeer(endpoint string) ClientConfig {
	c.Transport.Endpoints = []string{endpoint}
	return c
}
