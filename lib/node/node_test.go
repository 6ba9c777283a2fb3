package node

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/memnet"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig returns a configuration with millisecond timing
func fastConfig(id, peers int) Config {
	c := DefaultConfig(id, peers)
	c.ThinkTime = time.Millisecond
	c.WorkTime = time.Millisecond
	c.PollInterval = time.Millisecond
	c.Admission = mutex.AdmissionAllPeersKnown
	c.StrictContract = true
	return c
}

// runAsync starts p and returns a channel with the result of Run
func runAsync(ctx context.Context, p *Process) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- p.Run(ctx)
	}()
	return result
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig(2, 5)
	if c.ID != 2 || c.Peers != 5 {
		t.Errorf("Expected id 2 of 5, got %d of %d", c.ID, c.Peers)
	}
	if c.WorkTime != time.Second || c.PollInterval != 500*time.Millisecond {
		t.Errorf("Unexpected timing: work %s, poll %s", c.WorkTime, c.PollInterval)
	}
	if c.Admission != mutex.AdmissionLowestKnown || c.StrictContract {
		t.Errorf("Expected lowest-known admission without strict contract")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	net := memnet.New(2)
	defer net.Close()

	if _, err := New(fastConfig(2, 2), net); err == nil {
		t.Errorf("Expected error for id outside of the group")
	}
	if _, err := New(fastConfig(0, 0), net); err == nil {
		t.Errorf("Expected error for empty group")
	}
}

func TestBootstrapGrant(t *testing.T) {
	// process 0 holds the bootstrap request and enters without any peer running
	net := memnet.New(3)
	defer net.Close()

	grants := make(chan Grant, 1)
	config := fastConfig(0, 3)
	config.Admission = mutex.AdmissionLowestKnown
	config.ThinkTime = time.Hour
	config.MaxRounds = 1

	p, err := New(config, net, WithWork(func(ctx context.Context, g Grant) error {
		grants <- g
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := runAsync(ctx, p)

	select {
	case g := <-grants:
		if g.Process != 0 || g.Round != 0 {
			t.Errorf("Expected round 0 of process 0, got %+v", g)
		}
		if g.Request != (lclock.Clock{Owner: 0, Value: 0}) {
			t.Errorf("Expected bootstrap request (0,0), got %s", g.Request)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the bootstrap grant")
	}

	select {
	case <-p.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the process to finish")
	}

	if state := p.Engine().State(); state != mutex.StateIdle {
		t.Errorf("Expected IDLE after release, got %s", state)
	}

	// the release reached both peers
	for peer := 1; peer < 3; peer++ {
		msg, ok, err := net.PollFor(peer)
		if err != nil || !ok || msg.Action != mutex.ActionRelease {
			t.Errorf("Peer %d expected RELEASE, got %s (ok=%t, err=%v)", peer, msg, ok, err)
		}
	}

	cancel()
	if err := <-result; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestMutualExclusion(t *testing.T) {
	const peers = 4
	const rounds = 5

	net := memnet.New(peers, memnet.WithDelay(200*time.Microsecond, 1))
	defer net.Close()

	var occupancy atomic.Int32
	var violations atomic.Int32
	var mu sync.Mutex
	var order []lclock.Clock

	work := func(ctx context.Context, g Grant) error {
		if occupancy.Add(1) != 1 {
			violations.Add(1)
		}
		mu.Lock()
		order = append(order, g.Request)
		mu.Unlock()
		time.Sleep(500 * time.Microsecond)
		occupancy.Add(-1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processes := make([]*Process, peers)
	results := make([]<-chan error, peers)
	for i := range processes {
		config := fastConfig(i, peers)
		config.MaxRounds = rounds
		p, err := New(config, net, WithWork(work))
		if err != nil {
			t.Fatal(err)
		}
		processes[i] = p
	}
	for i, p := range processes {
		results[i] = runAsync(ctx, p)
	}

	deadline := time.After(10 * time.Second)
	for i, p := range processes {
		select {
		case <-p.Finished():
		case err := <-results[i]:
			t.Fatalf("Process %d stopped early: %v", i, err)
		case <-deadline:
			t.Fatalf("Timeout waiting for process %d", i)
		}
	}

	cancel()
	for i, result := range results {
		if err := <-result; err != nil {
			t.Errorf("Process %d returned %v", i, err)
		}
	}

	if v := violations.Load(); v != 0 {
		t.Errorf("Expected no overlapping grants, got %d", v)
	}
	if len(order) != peers*rounds {
		t.Errorf("Expected %d grants, got %d", peers*rounds, len(order))
	}
	for i := 1; i < len(order); i++ {
		if !order[i-1].Less(order[i]) {
			t.Errorf("Grant %d with %s not ordered after %s", i, order[i], order[i-1])
		}
	}

	var buf bytes.Buffer
	processes[1].WriteMetrics(&buf)
	if !strings.Contains(buf.String(), `dmx_grants_total{process="1"} 5`) {
		t.Errorf("Expected 5 grants in metrics, got:\n%s", buf.String())
	}
}

func TestUnknownActionPolicy(t *testing.T) {
	invalid := mutex.Message{Clock: lclock.Clock{Owner: 0, Value: 3}, Action: mutex.Action(9)}

	tests := []struct {
		name   string
		strict bool
	}{
		{"drop", false},
		{"strict", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := memnet.New(2)
			defer net.Close()

			config := fastConfig(1, 2)
			config.ThinkTime = time.Hour
			config.StrictContract = tt.strict
			p, err := New(config, net)
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			result := runAsync(ctx, p)

			if err := net.SendTo(invalid, 1); err != nil {
				t.Fatal(err)
			}

			if tt.strict {
				select {
				case err := <-result:
					if !errors.Is(err, mutex.ErrUnknownAction) {
						t.Errorf("Expected ErrUnknownAction, got %v", err)
					}
				case <-time.After(2 * time.Second):
					t.Fatal("Timeout waiting for the strict process to stop")
				}
				return
			}

			// the message is dropped and counted, the process keeps running
			deadline := time.After(2 * time.Second)
			for {
				var buf bytes.Buffer
				p.WriteMetrics(&buf)
				if strings.Contains(buf.String(), `dmx_messages_rejected_total{process="1"} 1`) {
					break
				}
				select {
				case err := <-result:
					t.Fatalf("Process stopped on a dropped message: %v", err)
				case <-deadline:
					t.Fatalf("Timeout waiting for the rejected message, metrics:\n%s", buf.String())
				case <-time.After(time.Millisecond):
				}
			}

			if c := p.Engine().Clock(); c.Value != 1 {
				t.Errorf("Dropped message must not touch the clock, got %s", c)
			}

			cancel()
			if err := <-result; err != nil {
				t.Errorf("Run returned %v", err)
			}
		})
	}
}

// failingNetwork accepts no sends
type failingNetwork struct{}

var errLinkDown = errors.New("link down")

func (failingNetwork) BroadcastExcept(mutex.Message, int) error { return errLinkDown }
func (failingNetwork) SendTo(mutex.Message, int) error          { return errLinkDown }
func (failingNetwork) PollFor(int) (mutex.Message, bool, error) {
	return mutex.Message{}, false, nil
}

func TestNetworkErrorIsFatal(t *testing.T) {
	config := fastConfig(1, 3)
	config.ThinkTime = 0
	p, err := New(config, failingNetwork{})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-runAsync(context.Background(), p):
		if !errors.Is(err, errLinkDown) {
			t.Errorf("Expected the network error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for Run to fail")
	}
}
