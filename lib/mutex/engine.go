package mutex

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
)

var Logger = logger.GetLogger("mutex")

// --------------------------------------------------------------------------
// State and Admission Policy
// --------------------------------------------------------------------------

// State is the position of a process in the request cycle
// IDLE -> REQUESTING -> IN_CRITICAL -> IDLE.
type State uint8

const (
	StateIdle State = iota
	StateRequesting
	StateInCritical
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequesting:
		return "REQUESTING"
	case StateInCritical:
		return "IN_CRITICAL"
	default:
		return "unknown"
	}
}

// AdmissionPolicy selects the admission predicate.
type AdmissionPolicy uint8

const (
	// AdmissionLowestKnown admits a process when its own REQUEST is the lowest
	// clock among all present slots. Absent slots are skipped.
	AdmissionLowestKnown AdmissionPolicy = iota
	// AdmissionAllPeersKnown additionally requires a message from every peer.
	AdmissionAllPeersKnown
)

func (p AdmissionPolicy) String() string {
	switch p {
	case AdmissionLowestKnown:
		return "lowest-known"
	case AdmissionAllPeersKnown:
		return "all-known"
	default:
		return "unknown"
	}
}

// ParseAdmissionPolicy converts the flag value into an AdmissionPolicy
func ParseAdmissionPolicy(s string) (AdmissionPolicy, error) {
	switch s {
	case "lowest-known", "":
		return AdmissionLowestKnown, nil
	case "all-known":
		return AdmissionAllPeersKnown, nil
	default:
		return 0, fmt.Errorf("invalid admission policy %s (expected lowest-known or all-known)", s)
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithAdmission sets the admission policy (default AdmissionLowestKnown)
func WithAdmission(policy AdmissionPolicy) Option {
	return func(e *Engine) {
		e.admission = policy
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is the per-process decision core. It owns the clock and the peer
// state table of one process; both are guarded by a single lock for the
// duration of every public call.
type Engine struct {
	mu        sync.Mutex
	self      int
	clock     lclock.Clock
	table     *PeerStateTable
	network   INetwork
	admission AdmissionPolicy
	state     State
}

// NewEngine creates the engine of process self in a group of peers processes.
//
// Process 0 starts in StateRequesting because of the bootstrap REQUEST in
// slot 0, every other process starts in StateIdle.
func NewEngine(self, peers int, network INetwork, opts ...Option) (*Engine, error) {
	if peers < 1 {
		return nil, fmt.Errorf("peer count must be positive, got %d", peers)
	}
	if self < 0 || self >= peers {
		return nil, fmt.Errorf("%w: process id %d not in [0, %d)", ErrUnknownPeer, self, peers)
	}
	if network == nil {
		return nil, fmt.Errorf("network is nil")
	}

	e := &Engine{
		self:    self,
		clock:   lclock.New(self),
		table:   NewPeerStateTable(peers),
		network: network,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.table.OwnSlotAction(self) == ActionRequest {
		e.state = StateRequesting
	}
	return e, nil
}

// ID returns the id of the owning process
func (e *Engine) ID() int {
	return e.self
}

// Peers returns the number of processes in the group
func (e *Engine) Peers() int {
	return e.table.Size()
}

// RequestEntry broadcasts a REQUEST stamped with the current clock, records
// it in the own slot and increments the clock (IDLE -> REQUESTING).
func (e *Engine) RequestEntry() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return fmt.Errorf("%w: request in state %s", ErrInvalidState, e.state)
	}

	msg := NewRequest(e.clock)
	if err := e.network.BroadcastExcept(msg, e.self); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg, err)
	}
	if err := e.table.RecordRequest(e.self, msg); err != nil {
		return err
	}
	e.clock.Increment()
	e.state = StateRequesting

	Logger.Debugf("process %d requested entry with %s", e.self, msg)
	return nil
}

// HandleIncoming merges the clock of msg, applies its action to the peer
// state table and re-evaluates admission. It returns the admission result.
//
// A REQUEST is answered with an unconditional ACK to its sender.
// Messages with an unknown action or sender are rejected before any state
// is touched.
func (e *Engine) HandleIncoming(msg Message) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sender := msg.Sender()
	if !msg.Action.Valid() {
		return e.mayEnter(), fmt.Errorf("%w: %s from %d", ErrUnknownAction, msg.Action, sender)
	}
	if sender == e.self || sender < 0 || sender >= e.table.Size() {
		return e.mayEnter(), fmt.Errorf("%w: message %s received by %d", ErrUnknownPeer, msg, e.self)
	}

	e.clock.Merge(msg.Clock)

	switch msg.Action {
	case ActionRequest:
		if err := e.table.RecordRequest(sender, msg); err != nil {
			return e.mayEnter(), err
		}
		ack := NewAck(e.clock)
		if err := e.network.SendTo(ack, sender); err != nil {
			return e.mayEnter(), fmt.Errorf("send %s to %d: %w", ack, sender, err)
		}
	case ActionAck:
		stored, err := e.table.RecordAck(sender, msg)
		if err != nil {
			return e.mayEnter(), err
		}
		if !stored {
			Logger.Debugf("process %d kept pending REQUEST of %d over %s", e.self, sender, msg)
		}
	case ActionRelease:
		if err := e.table.RecordRelease(sender, msg); err != nil {
			return e.mayEnter(), err
		}
	}

	admitted := e.mayEnter()
	Logger.Debugf("process %d handled %s (clock %s, admitted=%t)", e.self, msg, e.clock, admitted)
	return admitted, nil
}

// MayEnter evaluates the admission predicate on the current state.
func (e *Engine) MayEnter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mayEnter()
}

// TryEnter moves the process into the critical region if the admission
// predicate holds (REQUESTING -> IN_CRITICAL). It returns whether it did.
func (e *Engine) TryEnter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRequesting || !e.mayEnter() {
		return false
	}
	e.state = StateInCritical

	own, _ := e.table.Get(e.self)
	Logger.Infof("process %d entered the critical region with %s", e.self, own)
	return true
}

// ReleaseEntry broadcasts a RELEASE, records it in the own slot and
// increments the clock (IN_CRITICAL -> IDLE).
func (e *Engine) ReleaseEntry() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInCritical {
		return fmt.Errorf("%w: release in state %s", ErrInvalidState, e.state)
	}

	msg := NewRelease(e.clock)
	if err := e.network.BroadcastExcept(msg, e.self); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg, err)
	}
	if err := e.table.RecordRelease(e.self, msg); err != nil {
		return err
	}
	e.clock.Increment()
	e.state = StateIdle

	Logger.Infof("process %d left the critical region with %s", e.self, msg)
	return nil
}

// --------------------------------------------------------------------------
// Observability
// --------------------------------------------------------------------------

// Clock returns a copy of the current clock
func (e *Engine) Clock() lclock.Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// OwnMessage returns the message recorded in the own slot
func (e *Engine) OwnMessage() (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Get(e.self)
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a consistent copy of the clock, state and table
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Process:   e.self,
		Clock:     e.clock,
		State:     e.state.String(),
		Admission: e.admission.String(),
		MayEnter:  e.mayEnter(),
		Slots:     e.table.Snapshot(),
	}
}

// Snapshot is a point-in-time view of an engine
type Snapshot struct {
	Process   int          `json:"process"`
	Clock     lclock.Clock `json:"clock"`
	State     string       `json:"state"`
	Admission string       `json:"admission"`
	MayEnter  bool         `json:"may_enter"`
	Slots     []Slot       `json:"slots"`
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// mayEnter is the admission predicate. Caller must hold e.mu.
func (e *Engine) mayEnter() bool {
	if e.table.OwnSlotAction(e.self) != ActionRequest {
		return false
	}
	if e.admission == AdmissionAllPeersKnown && e.table.Present() < e.table.Size() {
		return false
	}
	lowest, ok := e.table.Lowest()
	return ok && lowest.Owner == e.self
}
