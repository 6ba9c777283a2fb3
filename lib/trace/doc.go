// Package trace persists the critical region grants of a dMX group in a
// SQLite database (modernc.org/sqlite, no cgo) and checks them afterwards.
//
// Every grant produces an ENTER and an EXIT event carrying the run id, the
// process, its round, the Lamport clock of the admitted request and the wall
// time. Verify rebuilds the occupation intervals of a run and reports
// intervals that overlap (a mutual exclusion violation) and grants that do
// not follow the total order of the request clocks.
//
// The database runs in WAL mode so all processes of a simulation can write
// concurrently; writes that hit lock contention are retried with backoff.
package trace
