package node

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/VictoriaMetrics/metrics"
)

// processMetrics groups the counters of one process in its own metrics set,
// so several processes can live in one OS process without name clashes.
type processMetrics struct {
	set      *metrics.Set
	process  int
	requests *metrics.Counter
	grants   *metrics.Counter
	releases *metrics.Counter
	rejected *metrics.Counter
	wait     *metrics.Histogram
}

func newProcessMetrics(process int) *processMetrics {
	set := metrics.NewSet()
	return &processMetrics{
		set:      set,
		process:  process,
		requests: set.NewCounter(fmt.Sprintf(`dmx_requests_total{process="%d"}`, process)),
		grants:   set.NewCounter(fmt.Sprintf(`dmx_grants_total{process="%d"}`, process)),
		releases: set.NewCounter(fmt.Sprintf(`dmx_releases_total{process="%d"}`, process)),
		rejected: set.NewCounter(fmt.Sprintf(`dmx_messages_rejected_total{process="%d"}`, process)),
		wait:     set.NewHistogram(fmt.Sprintf(`dmx_admission_wait_seconds{process="%d"}`, process)),
	}
}

// received returns the counter of delivered messages with the given action
func (m *processMetrics) received(action mutex.Action) *metrics.Counter {
	name := fmt.Sprintf(`dmx_messages_received_total{process="%d",action="%s"}`, m.process, action)
	return m.set.GetOrCreateCounter(name)
}
