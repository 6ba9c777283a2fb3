package common

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/mutex"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Protocol fields
	Owner  int32  `json:"owner"`  // Sender of the message (the owner of the clock)
	Target int32  `json:"target"` // Receiving process, checked by the server
	Clock  uint64 `json:"clock"`  // Lamport clock value of the sender

	// Response only fields
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Status (response)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewProtocolMessage wraps a mutex message addressed to target
func NewProtocolMessage(msg mutex.Message, target int) (*Message, error) {
	var t MessageType
	switch msg.Action {
	case mutex.ActionRequest:
		t = MsgTRequest
	case mutex.ActionAck:
		t = MsgTAck
	case mutex.ActionRelease:
		t = MsgTRelease
	default:
		return nil, fmt.Errorf("%w: %s", mutex.ErrUnknownAction, msg.Action)
	}
	return &Message{
		MsgType: t,
		Owner:   int32(msg.Clock.Owner),
		Target:  int32(target),
		Clock:   msg.Clock.Value,
	}, nil
}

// NewDeliveredResponse acknowledges the delivery of a protocol message by
// process self. It is a transport level reply, not a protocol ACK.
func NewDeliveredResponse(self int) *Message {
	return &Message{
		MsgType: MsgTSuccess,
		Owner:   int32(self),
	}
}

// NewStatusRequest creates a new Status request
func NewStatusRequest() *Message {
	return &Message{
		MsgType: MsgTStatus,
	}
}

// NewStatusResponse creates a new Status response carrying a JSON snapshot
func NewStatusResponse(self int, snapshot mutex.Snapshot) *Message {
	msg := &Message{
		MsgType: MsgTStatus,
		Owner:   int32(self),
	}
	meta, err := json.Marshal(snapshot)
	if err != nil {
		msg.Err = err.Error()
		return msg
	}
	msg.Meta = meta
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Conversion
// --------------------------------------------------------------------------

// IsProtocol reports whether the message carries a REQUEST, ACK or RELEASE
func (m *Message) IsProtocol() bool {
	return m.MsgType == MsgTRequest || m.MsgType == MsgTAck || m.MsgType == MsgTRelease
}

// Protocol converts the message back into a mutex message
func (m *Message) Protocol() (mutex.Message, error) {
	var action mutex.Action
	switch m.MsgType {
	case MsgTRequest:
		action = mutex.ActionRequest
	case MsgTAck:
		action = mutex.ActionAck
	case MsgTRelease:
		action = mutex.ActionRelease
	default:
		return mutex.Message{}, fmt.Errorf("%w: message type %s", mutex.ErrUnknownAction, m.MsgType)
	}
	return mutex.Message{
		Clock:  lclock.Clock{Owner: int(m.Owner), Value: m.Clock},
		Action: action,
	}, nil
}

// Snapshot decodes the snapshot of a Status response
func (m *Message) Snapshot() (mutex.Snapshot, error) {
	var snapshot mutex.Snapshot
	if m.MsgType != MsgTStatus {
		return snapshot, fmt.Errorf("expected status message, got %s", m.MsgType)
	}
	err := json.Unmarshal(m.Meta, &snapshot)
	return snapshot, err
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTRequest:
		return "request"
	case MsgTAck:
		return "ack"
	case MsgTRelease:
		return "release"
	case MsgTStatus:
		return "status"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "request":
		*t = MsgTRequest
	case "ack":
		*t = MsgTAck
	case "release":
		*t = MsgTRelease
	case "status":
		*t = MsgTStatus
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful delivery
	MsgTError               // Indicates an error occurred

	// Protocol messages

	MsgTRequest // Request the critical region
	MsgTAck     // Acknowledge a request
	MsgTRelease // Leave the critical region

	// Observability

	MsgTStatus // Query clock, state and peer table of a process
)
