package sim

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/rcrowley/go-metrics"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WaitStats summarizes the admission wait of one process
type WaitStats struct {
	Process int
	Grants  int
	Mean    time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Max     time.Duration
}

func newWaitStats(process int, timer metrics.Timer, grants int) WaitStats {
	snapshot := timer.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.95, 0.99})
	return WaitStats{
		Process: process,
		Grants:  grants,
		Mean:    time.Duration(snapshot.Mean()),
		P50:     time.Duration(ps[0]),
		P95:     time.Duration(ps[1]),
		P99:     time.Duration(ps[2]),
		Max:     time.Duration(snapshot.Max()),
	}
}

// Report is the outcome of a simulation
type Report struct {
	RunID     string
	Peers     int
	Rounds    int
	Admission string
	Duration  time.Duration

	// Grants in the order they left the critical region
	Grants []GrantRecord
	// Violations counts entries while another process held the region
	Violations int

	Sent      uint64
	Delivered uint64
	GrantRate float64 // grants per second
	Waits     []WaitStats
	// WaitFairness rates the spread of the mean admission wait over processes
	WaitFairness util.FairnessStats
}

// Ordered reports whether the grants follow the total order of the request
// clocks.
func (r *Report) Ordered() bool {
	grants := r.sortedByEntry()
	for i := 1; i < len(grants); i++ {
		if !grants[i-1].Request.Less(grants[i].Request) {
			return false
		}
	}
	return true
}

func (r *Report) sortedByEntry() []GrantRecord {
	grants := append([]GrantRecord(nil), r.Grants...)
	sort.SliceStable(grants, func(i, j int) bool {
		return grants[i].Entered.Before(grants[j].Entered)
	})
	return grants
}

// String returns a formatted summary of the report
func (r *Report) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Simulation")
	addField("Run ID", r.RunID)
	addField("Processes", strconv.Itoa(r.Peers))
	addField("Rounds", strconv.Itoa(r.Rounds))
	addField("Admission", r.Admission)
	addField("Duration", r.Duration.Round(time.Millisecond).String())

	addSection("Result")
	addField("Grants", strconv.Itoa(len(r.Grants)))
	addField("Violations", strconv.Itoa(r.Violations))
	addField("Lamport Ordered", strconv.FormatBool(r.Ordered()))
	addField("Grant Rate", fmt.Sprintf("%.2f/s", r.GrantRate))
	addField("Messages Sent", strconv.FormatUint(r.Sent, 10))
	addField("Messages Delivered", strconv.FormatUint(r.Delivered, 10))

	addSection("Admission Wait")
	sb.WriteString(fmt.Sprintf("  %-8s %6s %10s %10s %10s %10s %10s\n", "process", "grants", "mean", "p50", "p95", "p99", "max"))
	for _, w := range r.Waits {
		sb.WriteString(fmt.Sprintf("  %-8d %6d %10s %10s %10s %10s %10s\n", w.Process, w.Grants,
			w.Mean.Round(time.Microsecond), w.P50.Round(time.Microsecond), w.P95.Round(time.Microsecond),
			w.P99.Round(time.Microsecond), w.Max.Round(time.Microsecond)))
	}
	sb.WriteString(fmt.Sprintf("  %-22s: %.2f (mean spread %s .. %s)\n", "Fairness", r.WaitFairness.Fairness,
		secondsToDuration(r.WaitFairness.Min), secondsToDuration(r.WaitFairness.Max)))

	addSection("Grant Order")
	for _, g := range r.sortedByEntry() {
		sb.WriteString(fmt.Sprintf("  %-8s process %d round %d\n", g.Request, g.Process, g.Round))
	}
	return sb.String()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}
