// Package mutex implements the decision core of the dMX distributed mutual
// exclusion protocol: N processes coordinate through message passing and
// Lamport clocks so that at most one of them is inside the critical region at
// any time.
//
// Key Components:
//
//   - Message: immutable envelope of a clock snapshot and an Action
//     (REQUEST, ACK, RELEASE).
//
//   - PeerStateTable: the last message known from every process. A pending
//     REQUEST in a slot is never overwritten by an ACK from the same process,
//     so a late acknowledgement cannot hide a request from the admission check.
//     Slot 0 is seeded with a bootstrap REQUEST@(0,0) so process 0 holds
//     priority before any real request exists.
//
//   - Engine: owns the clock and the table of one process and exposes
//     RequestEntry, HandleIncoming, TryEnter/MayEnter and ReleaseEntry.
//
//   - INetwork: the capability the engine consumes (broadcast, unicast,
//     non-blocking poll). Implementations live in memnet (in-process) and
//     rpc/network (over the wire).
//
// Admission:
//
//	A process may enter when its own slot holds a REQUEST and that request has
//	the lowest clock of all present slots (ties broken by the lower process id).
//	The engine re-evaluates this after every handled message. With
//	AdmissionAllPeersKnown the predicate additionally waits for a message from
//	every peer, which closes the window at start-up where absent slots are
//	skipped.
//
// Every REQUEST is answered with an ACK, even if the receiver has a competing
// request of its own. There is no deferral of replies; convergence comes from
// the peer state table, not from counting acknowledgements.
//
// Failure Semantics:
//
//	There are no retries, timeouts or leader election. A crashed peer with a
//	recorded REQUEST stalls the admission of every other process. Network
//	errors are returned to the caller unchanged (wrapped), unknown actions and
//	senders are rejected with ErrUnknownAction / ErrUnknownPeer before any
//	state is modified.
//
// Usage Example:
//
//	engine, err := mutex.NewEngine(id, peers, network)
//	if err != nil { ... }
//
//	if err := engine.RequestEntry(); err != nil { ... }
//	for !engine.TryEnter() {
//	    msg, ok, err := network.PollFor(id)
//	    ...
//	    engine.HandleIncoming(msg)
//	}
//	// critical region
//	err = engine.ReleaseEntry()
package mutex
