// Package sim runs a whole dMX group inside one OS process.
//
// Run wires Peers node.Process instances to a memnet.Network, lets each of
// them complete Rounds grants and watches the critical region with an
// occupancy monitor: any entry while another process is inside counts as a
// violation. Admission waits are collected in a go-metrics registry (one
// Timer per process, one Meter for the grant rate) and summarized in the
// Report together with the grant order. With Config.Trace set every grant is
// also written to a trace database for later verification.
package sim
