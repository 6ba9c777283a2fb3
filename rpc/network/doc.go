// Package network connects a dMX process to its peers over the RPC layer.
//
// Network implements mutex.INetwork and mutex.INotifier. The RPC server of
// the process pushes validated messages into an inbox that the listener of
// the process drains with PollFor. Outgoing messages are sent with one
// client per peer, connected on first use.
//
// Sends are synchronous: SendTo returns only after the receiving server
// accepted the message into its inbox. Together with the one connection
// per peer this keeps messages of one sender to one receiver in FIFO order.
// Unreachable peers are retried with exponential backoff until they come up
// or the network is closed; a rejection by the remote server ends the retry.
//
// A retry after a timeout may deliver a message twice if the remote server
// stalled for longer than the request timeout. Duplicates are not filtered,
// so the timeout should stay well above the expected handling time.
package network
