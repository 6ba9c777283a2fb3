// Package util provides small building blocks shared by the dMX packages.
//
// The package contains:
//   - mailbox: a lock-free Multi-Producer Single-Consumer FIFO used as the inbox
//     of every process (non-blocking TryPop plus a wake-up channel)
//   - functions: timing helpers such as Jitter for simulated latency and work
//   - statistics: summary statistics and a fairness score for per-process values
package util
