package node

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"sync"
	"time"
)

var Logger = logger.GetLogger("node")

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the parameters of one process.
type Config struct {
	// ID is the process id in [0, Peers)
	ID int
	// Peers is the number of processes in the group
	Peers int

	// ThinkTime is the pause in IDLE before the next request
	ThinkTime   time.Duration
	ThinkJitter float64
	// WorkTime is the duration of the default critical work
	WorkTime   time.Duration
	WorkJitter float64
	// PollInterval is the listener backoff when the network cannot notify
	PollInterval time.Duration
	PollJitter   float64

	// MaxRounds limits the number of grants (0 = unlimited)
	MaxRounds int
	// Admission selects the admission predicate of the engine
	Admission mutex.AdmissionPolicy
	// StrictContract stops the process on messages with an unknown action
	// or sender instead of logging and dropping them
	StrictContract bool
}

// DefaultConfig returns the configuration of process id in a group of peers.
// Work and poll timing follow the classic simulation: one second of work and
// half a second of polling, each with up to 50% random extra.
func DefaultConfig(id, peers int) Config {
	return Config{
		ID:           id,
		Peers:        peers,
		ThinkTime:    time.Second,
		ThinkJitter:  0.5,
		WorkTime:     time.Second,
		WorkJitter:   0.5,
		PollInterval: 500 * time.Millisecond,
		PollJitter:   0.5,
	}
}

// --------------------------------------------------------------------------
// Grants and Work
// --------------------------------------------------------------------------

// Grant describes one admission to the critical region
type Grant struct {
	Process int
	Round   int
	Request lclock.Clock  // clock of the admitted request
	Waited  time.Duration // time between request and admission
	Entered time.Time
}

// Work is the critical region. It runs while the process holds the grant.
type Work func(ctx context.Context, grant Grant) error

// Option configures a Process
type Option func(*Process)

// WithWork replaces the default critical work (a jittered sleep of WorkTime)
func WithWork(work Work) Option {
	return func(p *Process) {
		p.work = work
	}
}

// --------------------------------------------------------------------------
// Process
// --------------------------------------------------------------------------

// Process runs one member of the group: a listener goroutine that feeds every
// delivered message into the engine, and a main loop that requests the
// critical region, performs the work and releases it again.
type Process struct {
	config   Config
	engine   *mutex.Engine
	network  mutex.INetwork
	work     Work
	metrics  *processMetrics
	admitted chan struct{}
	finished chan struct{}
	once     sync.Once
}

// New creates a process on top of network.
func New(config Config, network mutex.INetwork, opts ...Option) (*Process, error) {
	engine, err := mutex.NewEngine(config.ID, config.Peers, network, mutex.WithAdmission(config.Admission))
	if err != nil {
		return nil, err
	}

	p := &Process{
		config:   config,
		engine:   engine,
		network:  network,
		metrics:  newProcessMetrics(config.ID),
		admitted: make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
	p.work = p.defaultWork
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Engine returns the decision core of the process
func (p *Process) Engine() *mutex.Engine {
	return p.engine
}

// Finished is closed once MaxRounds grants were completed
func (p *Process) Finished() <-chan struct{} {
	return p.finished
}

// WriteMetrics writes the metrics of the process in Prometheus text format
func (p *Process) WriteMetrics(w io.Writer) {
	p.metrics.set.WritePrometheus(w)
}

// Run executes the process until ctx is cancelled.
//
// After MaxRounds grants the main loop stops requesting but the listener keeps
// answering peers until ctx is done. Network failures are fatal and returned.
// Cancellation returns nil.
func (p *Process) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenerErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.listen(ctx); err != nil {
			listenerErr <- err
			cancel()
		}
	}()

	Logger.Infof("process %d of %d started (state %s)", p.config.ID, p.config.Peers, p.engine.State())

	err := p.loop(ctx, listenerErr)
	cancel()
	wg.Wait()

	// the listener may have failed while the loop saw only the cancellation
	if err == nil {
		select {
		case err = <-listenerErr:
		default:
		}
	}

	if err != nil {
		Logger.Errorf("process %d stopped: %v", p.config.ID, err)
		return err
	}
	Logger.Infof("process %d stopped", p.config.ID)
	return nil
}

// --------------------------------------------------------------------------
// Main Loop
// --------------------------------------------------------------------------

// loop is the control flow of the process: request, wait, work, release.
func (p *Process) loop(ctx context.Context, listenerErr <-chan error) error {
	for round := 0; p.config.MaxRounds == 0 || round < p.config.MaxRounds; round++ {
		// process 0 starts with the bootstrap request already pending
		if p.engine.State() == mutex.StateIdle {
			if !sleep(ctx, util.Jitter(p.config.ThinkTime, p.config.ThinkJitter)) {
				return nil
			}
			if err := p.engine.RequestEntry(); err != nil {
				return fmt.Errorf("request entry: %w", err)
			}
			p.metrics.requests.Inc()
		}
		requested := time.Now()

		for !p.engine.TryEnter() {
			select {
			case <-p.admitted:
			case err := <-listenerErr:
				return err
			case <-ctx.Done():
				return nil
			}
		}

		own, _ := p.engine.OwnMessage()
		grant := Grant{
			Process: p.config.ID,
			Round:   round,
			Request: own.Clock,
			Waited:  time.Since(requested),
			Entered: time.Now(),
		}
		p.metrics.grants.Inc()
		p.metrics.wait.Update(grant.Waited.Seconds())

		workErr := p.work(ctx, grant)

		if err := p.engine.ReleaseEntry(); err != nil {
			return fmt.Errorf("release entry: %w", err)
		}
		p.metrics.releases.Inc()

		if workErr != nil && ctx.Err() == nil {
			return fmt.Errorf("critical work of round %d: %w", round, workErr)
		}
	}

	Logger.Infof("process %d completed %d rounds", p.config.ID, p.config.MaxRounds)
	p.once.Do(func() { close(p.finished) })

	<-ctx.Done()
	return nil
}

// defaultWork simulates the critical region with a jittered sleep.
func (p *Process) defaultWork(ctx context.Context, _ Grant) error {
	if !sleep(ctx, util.Jitter(p.config.WorkTime, p.config.WorkJitter)) {
		return ctx.Err()
	}
	return nil
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// listen drains the inbox of the process and dispatches every message
// through the engine. After each dispatch the main loop is woken up if the
// admission predicate holds.
func (p *Process) listen(ctx context.Context) error {
	var notify <-chan struct{}
	if notifier, ok := p.network.(mutex.INotifier); ok {
		notify = notifier.Notify(p.config.ID)
	}

	for {
		msg, ok, err := p.network.PollFor(p.config.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poll: %w", err)
		}

		if !ok {
			if notify != nil {
				select {
				case <-notify:
				case <-ctx.Done():
					return nil
				}
			} else if !sleep(ctx, util.Jitter(p.config.PollInterval, p.config.PollJitter)) {
				return nil
			}
			continue
		}

		p.metrics.received(msg.Action).Inc()
		admitted, err := p.engine.HandleIncoming(msg)
		if err != nil {
			if !errors.Is(err, mutex.ErrUnknownAction) && !errors.Is(err, mutex.ErrUnknownPeer) {
				return fmt.Errorf("handle %s: %w", msg, err)
			}
			if p.config.StrictContract {
				return err
			}
			p.metrics.rejected.Inc()
			Logger.Errorf("process %d dropped message: %v", p.config.ID, err)
			continue
		}

		if admitted {
			select {
			case p.admitted <- struct{}{}:
			default:
			}
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// sleep waits for d or until ctx is done. It returns false if ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
