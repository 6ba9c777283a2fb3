package mutex

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
)

// Slot is one entry of a table snapshot
type Slot struct {
	Peer    int      `json:"peer"`
	Message *Message `json:"message,omitempty"` // nil if nothing was observed from Peer yet
}

// PeerStateTable maps every process id to the last message attributable to
// that process. The overwrite rules encode the protocol priority: a pending
// REQUEST can only be replaced by a newer REQUEST or a RELEASE, never by an ACK.
//
// PeerStateTable is not safe for concurrent use; the engine guards it.
type PeerStateTable struct {
	slots   []Message
	present []bool
}

// NewPeerStateTable creates a table for peers processes. Slot 0 is seeded
// with the bootstrap REQUEST@(0,0) so that process 0 holds priority before
// any real request is issued.
func NewPeerStateTable(peers int) *PeerStateTable {
	t := &PeerStateTable{
		slots:   make([]Message, peers),
		present: make([]bool, peers),
	}
	if peers > 0 {
		t.slots[0] = NewRequest(lclock.Clock{Owner: 0, Value: 0})
		t.present[0] = true
	}
	return t
}

// Size returns the number of slots (N)
func (t *PeerStateTable) Size() int {
	return len(t.slots)
}

// Present returns how many slots hold a message
func (t *PeerStateTable) Present() int {
	count := 0
	for _, ok := range t.present {
		if ok {
			count++
		}
	}
	return count
}

// Get returns the message in slot p
func (t *PeerStateTable) Get(p int) (Message, bool) {
	if !t.valid(p) {
		return Message{}, false
	}
	return t.slots[p], t.present[p]
}

// RecordRequest overwrites slot p unconditionally.
func (t *PeerStateTable) RecordRequest(p int, msg Message) error {
	return t.overwrite(p, msg)
}

// RecordRelease overwrites slot p unconditionally.
func (t *PeerStateTable) RecordRelease(p int, msg Message) error {
	return t.overwrite(p, msg)
}

// RecordAck stores msg in slot p unless the slot holds a REQUEST.
// It returns whether the ack was stored.
func (t *PeerStateTable) RecordAck(p int, msg Message) (bool, error) {
	if !t.valid(p) {
		return false, fmt.Errorf("%w: %d", ErrUnknownPeer, p)
	}
	if t.present[p] && t.slots[p].Action == ActionRequest {
		return false, nil
	}
	t.slots[p] = msg
	t.present[p] = true
	return true, nil
}

// Lowest returns the minimum clock over all present slots.
// The boolean is false only if every slot is absent, which the slot 0
// bootstrap rules out for any table created by NewPeerStateTable.
func (t *PeerStateTable) Lowest() (lclock.Clock, bool) {
	var lowest lclock.Clock
	found := false
	for p, msg := range t.slots {
		if !t.present[p] {
			continue
		}
		if !found {
			lowest = msg.Clock
			found = true
			continue
		}
		lowest = lclock.LowestOf(lowest, msg.Clock)
	}
	return lowest, found
}

// OwnSlotAction returns the action of slot self or ActionNone if absent.
func (t *PeerStateTable) OwnSlotAction(self int) Action {
	msg, ok := t.Get(self)
	if !ok {
		return ActionNone
	}
	return msg.Action
}

// Snapshot returns a copy of all slots
func (t *PeerStateTable) Snapshot() []Slot {
	out := make([]Slot, len(t.slots))
	for p := range t.slots {
		out[p] = Slot{Peer: p}
		if t.present[p] {
			msg := t.slots[p]
			out[p].Message = &msg
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *PeerStateTable) valid(p int) bool {
	return p >= 0 && p < len(t.slots)
}

func (t *PeerStateTable) overwrite(p int, msg Message) error {
	if !t.valid(p) {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, p)
	}
	t.slots[p] = msg
	t.present[p] = true
	return nil
}
