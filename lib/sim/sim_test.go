package sim

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/trace"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fastConfig(peers, rounds int) Config {
	c := DefaultConfig()
	c.Peers = peers
	c.Rounds = rounds
	c.ThinkTime = time.Millisecond
	c.WorkTime = time.Millisecond
	c.Delay = 100 * time.Microsecond
	c.Timeout = 20 * time.Second
	return c
}

func TestRunKeepsMutualExclusion(t *testing.T) {
	tests := []struct {
		name   string
		peers  int
		rounds int
		delay  time.Duration
	}{
		{"single process", 1, 3, 0},
		{"three processes synchronous", 3, 4, 0},
		{"five processes with latency", 5, 3, 200 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig(tt.peers, tt.rounds)
			cfg.Delay = tt.delay

			report, err := Run(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if report.Violations != 0 {
				t.Errorf("Expected no violations, got %d", report.Violations)
			}
			if len(report.Grants) != tt.peers*tt.rounds {
				t.Errorf("Expected %d grants, got %d", tt.peers*tt.rounds, len(report.Grants))
			}
			if !report.Ordered() {
				t.Errorf("Expected grants in Lamport order:\n%s", report)
			}
			if len(report.Waits) != tt.peers {
				t.Fatalf("Expected wait stats for %d processes, got %d", tt.peers, len(report.Waits))
			}
			for _, w := range report.Waits {
				if w.Grants != tt.rounds {
					t.Errorf("Process %d expected %d grants, got %d", w.Process, tt.rounds, w.Grants)
				}
			}
		})
	}
}

func TestRunFirstGrantIsBootstrap(t *testing.T) {
	report, err := Run(context.Background(), fastConfig(3, 1))
	if err != nil {
		t.Fatal(err)
	}
	first := report.sortedByEntry()[0]
	if first.Process != 0 || first.Request.Value != 0 {
		t.Errorf("Expected the bootstrap request of process 0 first, got %s of %d", first.Request, first.Process)
	}
}

func TestRunRecordsTrace(t *testing.T) {
	recorder, err := trace.Open(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer recorder.Close()

	cfg := fastConfig(3, 2)
	cfg.Trace = recorder
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	result, err := recorder.Verify(report.RunID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Grants != 6 || result.Open != 0 {
		t.Errorf("Expected 6 closed grants, got %d (%d open)", result.Grants, result.Open)
	}
	if !result.OK() {
		t.Errorf("Expected a valid trace, got %d overlaps and %d out of order", len(result.Overlaps), len(result.OutOfOrder))
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := fastConfig(2, 1000)
	cfg.WorkTime = 10 * time.Millisecond
	cfg.Timeout = 50 * time.Millisecond

	report, err := Run(context.Background(), cfg)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if report == nil {
		t.Fatal("Expected a partial report")
	}
	if report.Violations != 0 {
		t.Errorf("Expected no violations, got %d", report.Violations)
	}
}

func TestRunValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Peers = 0
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Errorf("Expected error for zero peers")
	}
	cfg = DefaultConfig()
	cfg.Rounds = 0
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Errorf("Expected error for zero rounds")
	}
}

func TestReportString(t *testing.T) {
	cfg := fastConfig(2, 1)
	cfg.Admission = mutex.AdmissionAllPeersKnown
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	out := report.String()
	for _, want := range []string{"SIMULATION", report.RunID, "all-known", "ADMISSION WAIT", "Fairness", "GRANT ORDER"} {
		if !strings.Contains(out, want) {
			t.Errorf("Report misses %q:\n%s", want, out)
		}
	}
	if f := report.WaitFairness.Fairness; f < 0 || f > 1 {
		t.Errorf("fairness %f outside [0, 1]", f)
	}
}
