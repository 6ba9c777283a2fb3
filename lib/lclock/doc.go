// Package lclock implements the Lamport logical clock used by the dMX mutual
// exclusion protocol.
//
// A Clock is a pair (Owner, Value). Owner is the id of the process that owns
// the clock and never changes, Value is a counter that never decreases.
//
// Rules:
//
//   - Increment: after every broadcast send, Value += 1.
//   - Merge: on every received message with remote clock R,
//     Value = max(Value, R.Value) + 1.
//
// Clocks form a total order: A < B iff A.Value < B.Value, or the values are
// equal and A.Owner < B.Owner. This order is the only criterion the protocol
// uses to decide which process may enter the critical region.
//
// Thread Safety:
//
//	Clock is a plain value type and is not safe for concurrent mutation.
//	The mutex engine guards its clock with the same lock it uses for the peer
//	state table.
package lclock
