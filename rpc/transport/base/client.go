package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	errConnectionClosed = errors.New("connection is closed")
	errTransportClosed  = errors.New("transport is closed")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection with its own reader
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	stopCh   chan struct{} // closed when the transport shuts down

	mu      sync.Mutex // protects conn and serializes writes
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan responseResult]
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin counter
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.closeConnections()
	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			c := &clientConnection{
				endpoint: endpoint,
				parent:   t,
				stopCh:   make(chan struct{}),
				pending:  xsync.NewMapOf[uint64, chan responseResult](),
			}

			if err := c.dial(); err != nil {
				Logger.Debugf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, c)
			go c.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any of %v", config.Transport.Endpoints)
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(groupID uint64, req []byte) ([]byte, error) {
	maxRetries := max(1, t.config.Transport.RetryCount)
	backoff := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if t.stopping.Load() {
			return nil, errTransportClosed
		}

		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		// a fresh id per attempt, late answers of an earlier attempt are dropped
		requestID := t.nextRequestID.Add(1)
		data, err := conn.roundTrip(groupID, requestID, req)
		if err == nil {
			return data, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, maxRetries, conn.endpoint, err)

		if i+1 < maxRetries {
			// exponential backoff with +-10% jitter
			jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter))
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// timeout returns the configured request timeout (0 = none)
func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	default:
		return t.connections[t.nextConnIndex.Add(1)%uint64(len(t.connections))]
	}
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		c.failPending(errTransportClosed)
	}
}

// roundTrip writes one request frame and waits for its response
func (c *clientConnection) roundTrip(groupID, requestID uint64, req []byte) ([]byte, error) {
	respCh := make(chan responseResult, 1)
	c.pending.Store(requestID, respCh)
	defer c.pending.Delete(requestID)

	timeout := c.parent.timeout()

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, errConnectionClosed
	}
	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	err := writeFrame(c.conn, groupID, requestID, req)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timeoutCh:
		return nil, fmt.Errorf("request %d timed out after %s", requestID, timeout)
	case <-c.stopCh:
		return nil, errTransportClosed
	}
}

// readResponses reads responses in a loop and hands them to the waiting
// requests. A broken connection fails all pending requests and is redialed
// with backoff until the transport closes.
func (c *clientConnection) readResponses() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if !c.redial() {
				return
			}
			continue
		}

		groupID, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			if c.parent.stopping.Load() {
				return
			}
			Logger.Warningf("Connection to %s broken: %v", c.endpoint, err)
			c.mu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			c.failPending(fmt.Errorf("error reading response: %w", err))
			continue
		}

		if respCh, found := c.pending.LoadAndDelete(requestID); found {
			respCh <- responseResult{data: data}
		} else {
			Logger.Warningf("Received response for unknown request ID %d with group ID %d", requestID, groupID)
		}
	}
}

// redial reconnects with exponential backoff. It returns false if the
// transport was closed meanwhile.
func (c *clientConnection) redial() bool {
	backoff := 50 * time.Millisecond
	for {
		err := c.dial()
		if err == nil {
			Logger.Infof("Reconnected to %s", c.endpoint)
			return true
		}
		Logger.Debugf("Reconnect to %s failed: %v", c.endpoint, err)

		select {
		case <-c.stopCh:
			return false
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, 2*time.Second)
	}
}

// dial establishes the connection to the endpoint
func (c *clientConnection) dial() error {
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopCh:
		conn.Close()
		return errTransportClosed
	default:
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	return nil
}

// failPending answers every waiting request with err
func (c *clientConnection) failPending(err error) {
	c.pending.Range(func(id uint64, ch chan responseResult) bool {
		if _, ok := c.pending.LoadAndDelete(id); ok {
			ch <- responseResult{err: err}
		}
		return true
	})
}
