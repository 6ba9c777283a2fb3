package trace

import (
	"errors"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// grant records one ENTER/EXIT pair starting at offset ms after base
func grant(t *testing.T, r *Recorder, run string, process, round int, clock lclock.Clock, base time.Time, from, to int) {
	t.Helper()
	if err := r.RecordEnter(run, process, round, clock, base.Add(time.Duration(from)*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordExit(run, process, round, clock, base.Add(time.Duration(to)*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
}

func TestNewRunAndRuns(t *testing.T) {
	r := openTest(t)

	first, err := r.NewRun(3, "all-known")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.NewRun(5, "lowest-known")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("Expected distinct run ids")
	}

	runs, err := r.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first || runs[0].Peers != 3 || runs[0].Admission != "all-known" {
		t.Errorf("Unexpected first run %+v", runs[0])
	}
}

func TestVerify(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name       string
		record     func(t *testing.T, r *Recorder, run string)
		overlaps   int
		outOfOrder int
		open       int
	}{
		{
			name: "sequential grants in clock order",
			record: func(t *testing.T, r *Recorder, run string) {
				grant(t, r, run, 0, 0, lclock.Clock{Owner: 0, Value: 0}, base, 0, 10)
				grant(t, r, run, 1, 0, lclock.Clock{Owner: 1, Value: 1}, base, 11, 20)
				grant(t, r, run, 2, 0, lclock.Clock{Owner: 2, Value: 1}, base, 21, 30)
			},
		},
		{
			name: "overlapping grants",
			record: func(t *testing.T, r *Recorder, run string) {
				grant(t, r, run, 1, 0, lclock.Clock{Owner: 1, Value: 1}, base, 0, 10)
				grant(t, r, run, 2, 0, lclock.Clock{Owner: 2, Value: 1}, base, 5, 15)
			},
			overlaps: 1,
		},
		{
			name: "grant against clock order",
			record: func(t *testing.T, r *Recorder, run string) {
				grant(t, r, run, 2, 0, lclock.Clock{Owner: 2, Value: 1}, base, 0, 10)
				grant(t, r, run, 1, 0, lclock.Clock{Owner: 1, Value: 1}, base, 11, 20)
			},
			outOfOrder: 1,
		},
		{
			name: "missing exit",
			record: func(t *testing.T, r *Recorder, run string) {
				if err := r.RecordEnter(run, 0, 0, lclock.Clock{}, base); err != nil {
					t.Fatal(err)
				}
			},
			open: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := openTest(t)
			run, err := r.NewRun(3, "all-known")
			if err != nil {
				t.Fatal(err)
			}
			tt.record(t, r, run)

			result, err := r.Verify(run)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if len(result.Overlaps) != tt.overlaps {
				t.Errorf("Expected %d overlaps, got %d", tt.overlaps, len(result.Overlaps))
			}
			if len(result.OutOfOrder) != tt.outOfOrder {
				t.Errorf("Expected %d out of order grants, got %d", tt.outOfOrder, len(result.OutOfOrder))
			}
			if result.Open != tt.open {
				t.Errorf("Expected %d open intervals, got %d", tt.open, result.Open)
			}
			if ok := tt.overlaps == 0 && tt.outOfOrder == 0; result.OK() != ok {
				t.Errorf("Expected OK() = %t", ok)
			}
		})
	}
}

func TestVerifyUnknownRun(t *testing.T) {
	r := openTest(t)
	if _, err := r.Verify("does-not-exist"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("Expected ErrUnknownRun, got %v", err)
	}
}

func TestVerifyRejectsExitWithoutEnter(t *testing.T) {
	r := openTest(t)
	run, err := r.NewRun(2, "all-known")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RecordExit(run, 1, 0, lclock.Clock{Owner: 1, Value: 1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Verify(run); err == nil {
		t.Errorf("Expected error for exit without enter")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("no such table: events"), false},
	}
	for _, tt := range tests {
		if got := isTransient(tt.err); got != tt.want {
			t.Errorf("isTransient(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}
