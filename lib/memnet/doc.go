// Package memnet provides an in-process network for the dMX mutual exclusion
// protocol. It implements mutex.INetwork for a fixed group of processes that
// live in the same OS process, which is what the simulator and most tests use.
//
// Every process owns a lock-free inbox (util.Mailbox). Without a delay a send
// pushes straight into the receiver's inbox. With WithDelay every ordered
// (sender, receiver) pair gets its own delivery goroutine that forwards the
// messages of that pair in send order, each after its own jittered delay, so
// delivery is reliable and FIFO per pair as the protocol requires.
//
// The network also implements mutex.INotifier, so listeners can block on the
// inbox instead of polling with a sleep.
package memnet
