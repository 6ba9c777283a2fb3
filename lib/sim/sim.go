package sim

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/memnet"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/node"
	"github.com/ValentinKolb/dMX/lib/trace"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
	"sync"
	"time"
)

var Logger = logger.GetLogger("sim")

// ErrTimeout is returned when the group did not finish all rounds in time
var ErrTimeout = errors.New("sim: timeout")

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config describes one simulation
type Config struct {
	Peers  int
	Rounds int // grants per process

	ThinkTime   time.Duration
	ThinkJitter float64
	WorkTime    time.Duration
	WorkJitter  float64
	// Delay is the network latency per message (0 delivers synchronously)
	Delay       time.Duration
	DelayJitter float64

	Admission mutex.AdmissionPolicy
	// Timeout bounds the whole run (0 = no bound)
	Timeout time.Duration
	// Trace receives ENTER/EXIT events if not nil
	Trace *trace.Recorder
}

// DefaultConfig returns a quick simulation of three processes with two
// rounds each. Work, think and poll timing are scaled down from the
// defaults of a served node so a run takes well below a second.
func DefaultConfig() Config {
	return Config{
		Peers:       3,
		Rounds:      2,
		ThinkTime:   5 * time.Millisecond,
		ThinkJitter: 0.5,
		WorkTime:    10 * time.Millisecond,
		WorkJitter:  0.5,
		Delay:       time.Millisecond,
		DelayJitter: 0.5,
		Admission:   mutex.AdmissionAllPeersKnown,
		Timeout:     time.Minute,
	}
}

func (c Config) validate() error {
	if c.Peers < 1 {
		return fmt.Errorf("peers must be positive, got %d", c.Peers)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be positive, got %d", c.Rounds)
	}
	return nil
}

// --------------------------------------------------------------------------
// Run
// --------------------------------------------------------------------------

// Run starts Peers processes over an in-memory network, waits until each of
// them completed Rounds grants and returns the report. A report is returned
// together with ErrTimeout or a process error so partial runs can be
// inspected.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if cfg.Trace != nil {
		id, err := cfg.Trace.NewRun(cfg.Peers, cfg.Admission.String())
		if err != nil {
			return nil, err
		}
		runID = id
	}

	var netOpts []memnet.Option
	if cfg.Delay > 0 {
		netOpts = append(netOpts, memnet.WithDelay(cfg.Delay, cfg.DelayJitter))
	}
	network := memnet.New(cfg.Peers, netOpts...)
	defer network.Close()

	registry := metrics.NewRegistry()
	grantMeter := metrics.NewRegisteredMeter("grants", registry)
	defer grantMeter.Stop()

	mon := newMonitor(cfg.Peers)
	timers := make([]metrics.Timer, cfg.Peers)
	processes := make([]*node.Process, cfg.Peers)

	for i := range processes {
		timers[i] = metrics.NewRegisteredTimer(fmt.Sprintf("process.%d.wait", i), registry)

		config := node.Config{
			ID:             i,
			Peers:          cfg.Peers,
			ThinkTime:      cfg.ThinkTime,
			ThinkJitter:    cfg.ThinkJitter,
			WorkTime:       cfg.WorkTime,
			WorkJitter:     cfg.WorkJitter,
			MaxRounds:      cfg.Rounds,
			Admission:      cfg.Admission,
			StrictContract: true,
		}
		timer := timers[i]
		work := func(ctx context.Context, g node.Grant) error {
			timer.Update(g.Waited)
			grantMeter.Mark(1)
			return mon.occupy(ctx, g, cfg, runID)
		}

		p, err := node.New(config, network, node.WithWork(work))
		if err != nil {
			return nil, err
		}
		processes[i] = p
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, cfg.Timeout)
		defer cancelTimeout()
	}

	Logger.Infof("starting run %s with %d processes, %d rounds, %s admission",
		runID, cfg.Peers, cfg.Rounds, cfg.Admission)
	started := time.Now()

	errs := make(chan error, cfg.Peers)
	var wg sync.WaitGroup
	for _, p := range processes {
		wg.Add(1)
		go func(p *node.Process) {
			defer wg.Done()
			if err := p.Run(runCtx); err != nil {
				errs <- fmt.Errorf("process %d: %w", p.Engine().ID(), err)
			}
		}(p)
	}

	var runErr error
	for _, p := range processes {
		select {
		case <-p.Finished():
			continue
		case runErr = <-errs:
		case <-runCtx.Done():
			runErr = ctx.Err()
			if runErr == nil {
				runErr = fmt.Errorf("%w after %s", ErrTimeout, cfg.Timeout)
			}
		}
		break
	}
	duration := time.Since(started)

	cancel()
	wg.Wait()
	close(errs)
	if runErr == nil {
		runErr = <-errs
	}

	report := &Report{
		RunID:      runID,
		Peers:      cfg.Peers,
		Rounds:     cfg.Rounds,
		Admission:  cfg.Admission.String(),
		Duration:   duration,
		Grants:     mon.grants(),
		Violations: mon.violations(),
		Sent:       network.Sent(),
		Delivered:  network.Delivered(),
		GrantRate:  grantMeter.RateMean(),
	}
	for i, timer := range timers {
		report.Waits = append(report.Waits, newWaitStats(i, timer, mon.count(i)))
	}
	meanWaits := make([]float64, len(report.Waits))
	for i, w := range report.Waits {
		meanWaits[i] = w.Mean.Seconds()
	}
	report.WaitFairness = util.NewFairnessStats(meanWaits)

	if runErr != nil {
		Logger.Errorf("run %s failed: %v", runID, runErr)
	} else {
		Logger.Infof("run %s finished: %d grants, %d violations in %s",
			runID, len(report.Grants), report.Violations, duration)
	}
	return report, runErr
}

// --------------------------------------------------------------------------
// Occupancy Monitor
// --------------------------------------------------------------------------

// GrantRecord is one observed occupation of the critical region
type GrantRecord struct {
	Process int
	Round   int
	Request lclock.Clock
	Waited  time.Duration
	Entered time.Time
	Left    time.Time
}

// monitor watches the critical region from the outside. A process entering
// while another one is inside counts as a violation.
type monitor struct {
	mu         sync.Mutex
	holders    map[int]struct{}
	records    []GrantRecord
	overlapped int
	perProcess *xsync.MapOf[int, int]
}

func newMonitor(peers int) *monitor {
	m := &monitor{
		holders:    make(map[int]struct{}, peers),
		perProcess: xsync.NewMapOf[int, int](),
	}
	return m
}

// occupy holds the region for the jittered work time of cfg
func (m *monitor) occupy(ctx context.Context, g node.Grant, cfg Config, runID string) error {
	m.enter(g.Process)
	entered := time.Now()

	if cfg.Trace != nil {
		if err := cfg.Trace.RecordEnter(runID, g.Process, g.Round, g.Request, entered); err != nil {
			m.exit(g, entered, entered)
			return err
		}
	}

	timer := time.NewTimer(util.Jitter(cfg.WorkTime, cfg.WorkJitter))
	defer timer.Stop()
	var err error
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}

	left := time.Now()
	m.exit(g, entered, left)

	if cfg.Trace != nil {
		if traceErr := cfg.Trace.RecordExit(runID, g.Process, g.Round, g.Request, left); traceErr != nil {
			return traceErr
		}
	}
	return err
}

func (m *monitor) enter(process int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.holders) > 0 {
		m.overlapped++
		Logger.Errorf("process %d entered while %d process(es) hold the critical region", process, len(m.holders))
	}
	m.holders[process] = struct{}{}
}

func (m *monitor) exit(g node.Grant, entered, left time.Time) {
	m.mu.Lock()
	delete(m.holders, g.Process)
	m.records = append(m.records, GrantRecord{
		Process: g.Process,
		Round:   g.Round,
		Request: g.Request,
		Waited:  g.Waited,
		Entered: entered,
		Left:    left,
	})
	m.mu.Unlock()

	m.perProcess.Compute(g.Process, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
}

func (m *monitor) grants() []GrantRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GrantRecord(nil), m.records...)
}

func (m *monitor) violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapped
}

func (m *monitor) count(process int) int {
	n, _ := m.perProcess.Load(process)
	return n
}
