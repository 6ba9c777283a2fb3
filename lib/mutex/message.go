package mutex

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
)

// --------------------------------------------------------------------------
// Action Definition
// --------------------------------------------------------------------------

// Action tags a protocol message.
type Action uint8

const (
	ActionNone    Action = iota // No message recorded (never sent on the wire)
	ActionRequest               // Ask for the critical region
	ActionAck                   // Courtesy reply to a request
	ActionRelease               // Leave the critical region
)

// Valid reports whether a is one of the three protocol actions.
func (a Action) Valid() bool {
	return a == ActionRequest || a == ActionAck || a == ActionRelease
}

// String returns the string representation of an Action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRequest:
		return "REQUEST"
	case ActionAck:
		return "ACK"
	case ActionRelease:
		return "RELEASE"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// MarshalJSON serializes the Action as its string name.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses an Action from its string name.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "none":
		*a = ActionNone
	case "REQUEST":
		*a = ActionRequest
	case "ACK":
		*a = ActionAck
	case "RELEASE":
		*a = ActionRelease
	default:
		return fmt.Errorf("unknown action: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the envelope exchanged between processes. It is a value type:
// once created it is never mutated, only replaced.
// Clock.Owner identifies the sender.
type Message struct {
	Clock  lclock.Clock `json:"clock"`
	Action Action       `json:"action"`
}

// NewRequest creates a REQUEST message stamped with clock
func NewRequest(clock lclock.Clock) Message {
	return Message{Clock: clock, Action: ActionRequest}
}

// NewAck creates an ACK message stamped with clock
func NewAck(clock lclock.Clock) Message {
	return Message{Clock: clock, Action: ActionAck}
}

// NewRelease creates a RELEASE message stamped with clock
func NewRelease(clock lclock.Clock) Message {
	return Message{Clock: clock, Action: ActionRelease}
}

// Sender returns the id of the process that sent the message.
func (m Message) Sender() int {
	return m.Clock.Owner
}

func (m Message) String() string {
	return fmt.Sprintf("%s@%s", m.Action, m.Clock)
}
