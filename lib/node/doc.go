// Package node runs one member of a dMX group on top of any mutex.INetwork.
//
// A Process owns a mutex.Engine and two goroutines:
//
//   - the listener drains the inbox of the process through PollFor, feeds
//     every message into Engine.HandleIncoming and wakes the main loop when
//     the admission predicate holds. If the network implements
//     mutex.INotifier the listener blocks on the inbox, otherwise it sleeps a
//     jittered PollInterval between empty polls.
//   - the main loop thinks for a jittered ThinkTime, requests entry, waits for
//     admission, runs the Work callback and releases the critical region.
//
// Process 0 starts with the bootstrap request pending and skips the first
// think phase. After MaxRounds grants the main loop stops requesting, closes
// Finished and waits for the context, while the listener keeps answering the
// requests of its peers.
//
// Messages with an unknown action or sender are logged and dropped unless
// Config.StrictContract is set, in which case Run stops with the error.
// Every other error (network failures in particular) is fatal.
//
// Each process keeps its counters in its own VictoriaMetrics set, written by
// WriteMetrics in Prometheus text format.
package node
