package network

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/ValentinKolb/dMX/rpc/client"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"github.com/ValentinKolb/dMX/rpc/server"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("rpc")

// ErrClosed is returned by all operations after Close
var ErrClosed = errors.New("network: closed")

const (
	minRetryDelay = 50 * time.Millisecond
	maxRetryDelay = 2 * time.Second
)

// peerSlot holds the lazily connected client of one remote process
type peerSlot struct {
	mu   sync.Mutex
	peer *client.RPCPeer
}

// Network implements mutex.INetwork and mutex.INotifier for one process on
// top of the RPC layer. Incoming messages are pushed into the inbox by the
// RPC server; outgoing messages are delivered synchronously, one peer after
// the other.
type Network struct {
	self         int
	serverConfig common.ServerConfig
	clientConfig common.ClientConfig
	serializer   serializer.IRPCSerializer
	newTransport func() transport.IRPCClientTransport
	serverTrans  transport.IRPCServerTransport

	inbox *util.Mailbox[mutex.Message]
	peers []*peerSlot

	mu     sync.Mutex // guards server
	server *server.RPCServer
	closed atomic.Bool
	done   chan struct{}
}

// New creates the network of process serverConfig.NodeID. newTransport is
// called once per remote process when it is first contacted.
func New(
	serverConfig common.ServerConfig,
	clientConfig common.ClientConfig,
	serverTransport transport.IRPCServerTransport,
	newTransport func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Network, error) {
	if err := serverConfig.Validate(); err != nil {
		return nil, err
	}
	clientConfig.GroupID = serverConfig.GroupID

	n := &Network{
		self:         serverConfig.NodeID,
		serverConfig: serverConfig,
		clientConfig: clientConfig,
		serializer:   serializer,
		newTransport: newTransport,
		serverTrans:  serverTransport,
		inbox:        util.NewMailbox[mutex.Message](),
		peers:        make([]*peerSlot, len(serverConfig.Peers)),
		done:         make(chan struct{}),
	}
	for i := range n.peers {
		n.peers[i] = &peerSlot{}
	}
	return n, nil
}

// Serve receives messages from the peers until Close is called. status
// answers the status queries, usually the Snapshot method of the engine.
// After Close it returns transport.ErrServerClosed.
func (n *Network) Serve(status func() mutex.Snapshot) error {
	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		return transport.ErrServerClosed
	}
	if n.server != nil {
		n.mu.Unlock()
		return fmt.Errorf("network of process %d is already serving", n.self)
	}
	n.server = server.NewRPCServer(n.serverConfig, n.serverTrans, n.serializer, n.inbox, status)
	s := n.server
	n.mu.Unlock()

	return s.Serve()
}

// Close stops the server, the pending retries and all peer connections
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed.Swap(true) {
		n.mu.Unlock()
		return nil
	}
	close(n.done)
	var err error
	if n.server != nil {
		err = n.server.Close()
	}
	n.mu.Unlock()

	n.inbox.Close()
	for _, slot := range n.peers {
		slot.mu.Lock()
		if slot.peer != nil {
			slot.peer.Close()
			slot.peer = nil
		}
		slot.mu.Unlock()
	}
	return err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see mutex.INetwork and mutex.INotifier)
// --------------------------------------------------------------------------

func (n *Network) BroadcastExcept(msg mutex.Message, exclude int) error {
	for target := range n.peers {
		if target == exclude {
			continue
		}
		if err := n.SendTo(msg, target); err != nil {
			return err
		}
	}
	return nil
}

// SendTo retries until the message is delivered, the remote process rejects
// it or the network is closed. Peers that are not up yet are waited for.
func (n *Network) SendTo(msg mutex.Message, target int) error {
	if target < 0 || target >= len(n.peers) {
		return fmt.Errorf("%w: %d", mutex.ErrUnknownPeer, target)
	}
	if target == n.self {
		if !n.inbox.Push(msg) {
			return ErrClosed
		}
		return nil
	}

	delay := minRetryDelay
	for attempt := 1; ; attempt++ {
		if n.closed.Load() {
			return ErrClosed
		}

		err := n.deliver(msg, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, client.ErrRejected) {
			return fmt.Errorf("deliver %s to %d: %w", msg, target, err)
		}

		if attempt == 1 {
			Logger.Warningf("process %d cannot reach process %d, retrying: %v", n.self, target, err)
		} else {
			Logger.Debugf("attempt %d to reach process %d failed: %v", attempt, target, err)
		}

		select {
		case <-n.done:
			return ErrClosed
		case <-time.After(util.Jitter(delay, 0.2)):
		}
		delay = min(2*delay, maxRetryDelay)
	}
}

func (n *Network) PollFor(self int) (mutex.Message, bool, error) {
	if self != n.self {
		return mutex.Message{}, false, fmt.Errorf("%w: network serves process %d, not %d", mutex.ErrUnknownPeer, n.self, self)
	}
	msg, ok := n.inbox.TryPop()
	if !ok && n.inbox.IsClosed() {
		return mutex.Message{}, false, ErrClosed
	}
	return msg, ok, nil
}

func (n *Network) Notify(self int) <-chan struct{} {
	return n.inbox.Wait()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// deliver sends msg over the connection to target, connecting first if needed
func (n *Network) deliver(msg mutex.Message, target int) error {
	slot := n.peers[target]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if n.closed.Load() {
		return ErrClosed
	}

	if slot.peer == nil {
		config := n.clientConfig.ForPeer(n.serverConfig.Peers[target])
		peer, err := client.NewRPCPeer(target, config, n.newTransport(), n.serializer)
		if err != nil {
			return err
		}
		Logger.Infof("process %d connected to process %d at %s", n.self, target, n.serverConfig.Peers[target])
		slot.peer = peer
	}
	return slot.peer.Deliver(msg)
}
