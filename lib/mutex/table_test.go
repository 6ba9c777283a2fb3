package mutex

import (
	"errors"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"testing"
)

func clk(owner int, value uint64) lclock.Clock {
	return lclock.Clock{Owner: owner, Value: value}
}

func TestNewPeerStateTableBootstrap(t *testing.T) {
	table := NewPeerStateTable(5)

	if table.Size() != 5 {
		t.Fatalf("Expected 5 slots, got %d", table.Size())
	}
	if table.Present() != 1 {
		t.Errorf("Only slot 0 should be present, got %d present slots", table.Present())
	}

	msg, ok := table.Get(0)
	if !ok || msg != NewRequest(clk(0, 0)) {
		t.Errorf("Slot 0 should hold REQUEST@(0,0), got %v (present=%t)", msg, ok)
	}

	for p := 1; p < 5; p++ {
		if _, ok := table.Get(p); ok {
			t.Errorf("Slot %d should be absent", p)
		}
	}
}

func TestRecordAckPolicy(t *testing.T) {
	tests := []struct {
		name     string
		before   *Message
		ack      Message
		stored   bool
		expected Message
	}{
		{
			name:     "absent_slot_takes_first_ack",
			before:   nil,
			ack:      NewAck(clk(3, 4)),
			stored:   true,
			expected: NewAck(clk(3, 4)),
		},
		{
			name:     "ack_replaces_release",
			before:   &Message{Clock: clk(3, 2), Action: ActionRelease},
			ack:      NewAck(clk(3, 4)),
			stored:   true,
			expected: NewAck(clk(3, 4)),
		},
		{
			name:     "ack_replaces_ack",
			before:   &Message{Clock: clk(3, 2), Action: ActionAck},
			ack:      NewAck(clk(3, 4)),
			stored:   true,
			expected: NewAck(clk(3, 4)),
		},
		{
			name:     "ack_keeps_request",
			before:   &Message{Clock: clk(3, 2), Action: ActionRequest},
			ack:      NewAck(clk(3, 4)),
			stored:   false,
			expected: NewRequest(clk(3, 2)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewPeerStateTable(5)
			if tt.before != nil {
				if err := table.RecordRequest(3, *tt.before); err != nil {
					t.Fatalf("Failed to seed slot: %v", err)
				}
			}

			stored, err := table.RecordAck(3, tt.ack)
			if err != nil {
				t.Fatalf("RecordAck failed: %v", err)
			}
			if stored != tt.stored {
				t.Errorf("Expected stored=%t, got %t", tt.stored, stored)
			}
			if got, _ := table.Get(3); got != tt.expected {
				t.Errorf("Expected slot %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRequestPriorityInvariant(t *testing.T) {
	table := NewPeerStateTable(5)

	// ack, then request, then a stale ack
	if _, err := table.RecordAck(4, NewAck(clk(4, 3))); err != nil {
		t.Fatal(err)
	}
	if err := table.RecordRequest(4, NewRequest(clk(4, 7))); err != nil {
		t.Fatal(err)
	}
	if _, err := table.RecordAck(4, NewAck(clk(4, 9))); err != nil {
		t.Fatal(err)
	}

	if got, _ := table.Get(4); got != NewRequest(clk(4, 7)) {
		t.Errorf("ACK must never overwrite a present REQUEST, slot is %v", got)
	}

	// a release clears the way for later acks
	if err := table.RecordRelease(4, NewRelease(clk(4, 10))); err != nil {
		t.Fatal(err)
	}
	if stored, _ := table.RecordAck(4, NewAck(clk(4, 12))); !stored {
		t.Error("ACK should replace a RELEASE")
	}
}

func TestLowest(t *testing.T) {
	table := NewPeerStateTable(6)

	lowest, ok := table.Lowest()
	if !ok || lowest != clk(0, 0) {
		t.Fatalf("Fresh table lowest should be (0,0), got %s (ok=%t)", lowest, ok)
	}

	_ = table.RecordRelease(0, NewRelease(clk(0, 9)))
	_ = table.RecordRequest(5, NewRequest(clk(5, 5)))
	_ = table.RecordRequest(2, NewRequest(clk(2, 5)))
	_, _ = table.RecordAck(3, NewAck(clk(3, 6)))

	lowest, ok = table.Lowest()
	if !ok || lowest != clk(2, 5) {
		t.Errorf("Expected tie-break to select (2,5), got %s", lowest)
	}
}

func TestLowestAllAbsent(t *testing.T) {
	table := &PeerStateTable{slots: make([]Message, 3), present: make([]bool, 3)}
	if _, ok := table.Lowest(); ok {
		t.Error("Lowest of an empty table should report not found")
	}
}

func TestOwnSlotAction(t *testing.T) {
	table := NewPeerStateTable(3)

	if a := table.OwnSlotAction(1); a != ActionNone {
		t.Errorf("Expected none for absent slot, got %s", a)
	}
	if a := table.OwnSlotAction(0); a != ActionRequest {
		t.Errorf("Expected REQUEST for bootstrap slot, got %s", a)
	}
	if a := table.OwnSlotAction(7); a != ActionNone {
		t.Errorf("Expected none for out of range slot, got %s", a)
	}
}

func TestUnknownPeer(t *testing.T) {
	table := NewPeerStateTable(3)

	if err := table.RecordRequest(3, NewRequest(clk(3, 1))); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
	if err := table.RecordRelease(-1, NewRelease(clk(0, 1))); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
	if _, err := table.RecordAck(9, NewAck(clk(9, 1))); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	table := NewPeerStateTable(2)
	snap := table.Snapshot()

	if len(snap) != 2 || snap[0].Message == nil || snap[1].Message != nil {
		t.Fatalf("Unexpected snapshot %+v", snap)
	}

	snap[0].Message.Action = ActionRelease
	if table.OwnSlotAction(0) != ActionRequest {
		t.Error("Mutating a snapshot must not change the table")
	}
}
