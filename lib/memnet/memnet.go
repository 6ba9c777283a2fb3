package memnet

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("memnet")

// ErrClosed is returned by all operations after Close
var ErrClosed = errors.New("memnet: network closed")

// Option configures a Network
type Option func(*Network)

// WithDelay delays every delivery by base plus up to jitter*base.
// Delivery stays FIFO per (sender, receiver) pair.
func WithDelay(base time.Duration, jitter float64) Option {
	return func(n *Network) {
		n.delay = base
		n.jitter = jitter
	}
}

// linkKey identifies an ordered (sender, receiver) pair
type linkKey struct {
	from, to int
}

// pending is a message waiting for its delivery time on a link
type pending struct {
	msg mutex.Message
	due time.Time
}

// link delivers the messages of one ordered pair in send order
type link struct {
	queue *util.Mailbox[pending]
}

// Network is an in-process implementation of mutex.INetwork and
// mutex.INotifier for a fixed group of processes.
type Network struct {
	peers  int
	boxes  []*util.Mailbox[mutex.Message]
	links  *xsync.MapOf[linkKey, *link]
	delay  time.Duration
	jitter float64

	sent      atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	workers   sync.WaitGroup
	lifecycle sync.RWMutex // held exclusively by Close, shared by senders
}

// New creates a network for peers processes with ids 0..peers-1.
func New(peers int, opts ...Option) *Network {
	n := &Network{
		peers: peers,
		boxes: make([]*util.Mailbox[mutex.Message], peers),
		links: xsync.NewMapOf[linkKey, *link](),
		done:  make(chan struct{}),
	}
	for i := range n.boxes {
		n.boxes[i] = util.NewMailbox[mutex.Message]()
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// --------------------------------------------------------------------------
// Interface Methods (docu see mutex.INetwork)
// --------------------------------------------------------------------------

func (n *Network) BroadcastExcept(msg mutex.Message, exclude int) error {
	if n.closed.Load() {
		return ErrClosed
	}
	for p := 0; p < n.peers; p++ {
		if p == exclude {
			continue
		}
		if err := n.deliver(msg, p); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) SendTo(msg mutex.Message, target int) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if target < 0 || target >= n.peers {
		return fmt.Errorf("%w: target %d", mutex.ErrUnknownPeer, target)
	}
	return n.deliver(msg, target)
}

func (n *Network) PollFor(self int) (mutex.Message, bool, error) {
	if self < 0 || self >= n.peers {
		return mutex.Message{}, false, fmt.Errorf("%w: receiver %d", mutex.ErrUnknownPeer, self)
	}
	msg, ok := n.boxes[self].TryPop()
	if !ok && n.closed.Load() {
		return mutex.Message{}, false, ErrClosed
	}
	return msg, ok, nil
}

// Notify implements mutex.INotifier
func (n *Network) Notify(self int) <-chan struct{} {
	if self < 0 || self >= n.peers {
		return nil
	}
	return n.boxes[self].Wait()
}

// --------------------------------------------------------------------------
// Lifecycle and Statistics
// --------------------------------------------------------------------------

// Close stops all delivery goroutines and closes every inbox.
// Messages already delivered can still be polled once; afterwards PollFor
// returns ErrClosed.
func (n *Network) Close() {
	n.lifecycle.Lock()
	if n.closed.Swap(true) {
		n.lifecycle.Unlock()
		return
	}
	close(n.done)
	n.lifecycle.Unlock()

	n.workers.Wait()
	for _, box := range n.boxes {
		box.Close()
	}
	Logger.Debugf("network closed after %d sent and %d delivered messages", n.sent.Load(), n.delivered.Load())
}

// Peers returns the size of the group
func (n *Network) Peers() int {
	return n.peers
}

// Sent returns the number of messages accepted for delivery
func (n *Network) Sent() uint64 {
	return n.sent.Load()
}

// Delivered returns the number of messages placed in an inbox
func (n *Network) Delivered() uint64 {
	return n.delivered.Load()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// deliver places msg into the inbox of target, directly or through the
// ordered link of the pair if a delay is configured.
func (n *Network) deliver(msg mutex.Message, target int) error {
	n.lifecycle.RLock()
	defer n.lifecycle.RUnlock()

	if n.closed.Load() {
		return ErrClosed
	}
	n.sent.Add(1)

	if n.delay <= 0 {
		return n.push(msg, target)
	}

	key := linkKey{from: msg.Sender(), to: target}
	l, _ := n.links.LoadOrCompute(key, func() *link {
		l := &link{queue: util.NewMailbox[pending]()}
		n.workers.Add(1)
		go n.runLink(l, target)
		return l
	})

	if !l.queue.Push(pending{msg: msg, due: time.Now().Add(util.Jitter(n.delay, n.jitter))}) {
		return ErrClosed
	}
	return nil
}

func (n *Network) push(msg mutex.Message, target int) error {
	if !n.boxes[target].Push(msg) {
		return ErrClosed
	}
	n.delivered.Add(1)
	return nil
}

// runLink forwards the messages of one link in order, each not before its due time.
func (n *Network) runLink(l *link, target int) {
	defer n.workers.Done()

	for {
		item, ok := l.queue.TryPop()
		if !ok {
			select {
			case <-l.queue.Wait():
				continue
			case <-n.done:
				return
			}
		}

		if wait := time.Until(item.due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-n.done:
				timer.Stop()
				return
			}
		}

		if err := n.push(item.msg, target); err != nil {
			return
		}
	}
}
