package mutex

import "errors"

var (
	// ErrUnknownAction is returned when a delivered message carries an action
	// outside REQUEST, ACK and RELEASE. This is a contract violation of the network.
	ErrUnknownAction = errors.New("mutex: unknown action")
	// ErrUnknownPeer is returned for peer ids outside [0, N) or for messages
	// that claim to come from the receiving process itself.
	ErrUnknownPeer = errors.New("mutex: unknown peer")
	// ErrInvalidState is returned when an operation is called in a state that
	// does not allow it (e.g. RequestEntry while a request is pending).
	ErrInvalidState = errors.New("mutex: invalid state")
)

// INetwork is the capability the engine needs from the transport.
//
// Implementations must deliver messages reliably and in FIFO order for every
// ordered (sender, receiver) pair. The engine does not compensate for loss,
// duplication or reordering.
type INetwork interface {
	// BroadcastExcept delivers msg to every process except exclude.
	BroadcastExcept(msg Message, exclude int) error
	// SendTo delivers msg to the process target.
	SendTo(msg Message, target int) error
	// PollFor returns the next undelivered message addressed to self without
	// blocking. The boolean is false if no message is pending.
	PollFor(self int) (msg Message, ok bool, err error)
}

// INotifier is optionally implemented by networks that can signal pending
// messages, so a listener can block instead of polling with a backoff.
type INotifier interface {
	// Notify returns a channel that receives a value whenever a message for
	// self may have become available.
	Notify(self int) <-chan struct{}
}
