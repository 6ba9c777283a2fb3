package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	_ "modernc.org/sqlite"
	"sort"
	"time"
)

var Logger = logger.GetLogger("trace")

// ErrUnknownRun is returned for run ids that are not in the database
var ErrUnknownRun = errors.New("trace: unknown run")

// Kind is the type of a recorded event
type Kind string

const (
	KindEnter Kind = "ENTER"
	KindExit  Kind = "EXIT"
)

// Run describes one recorded session
type Run struct {
	ID        string
	Peers     int
	Admission string
	Started   time.Time
}

// Event is one row of the trace
type Event struct {
	Seq     int64
	RunID   string
	Process int
	Round   int
	Kind    Kind
	Clock   lclock.Clock // clock of the granted request
	At      time.Time
}

// Recorder writes grant events into a SQLite database. It is safe for
// concurrent use.
type Recorder struct {
	db *sql.DB
}

// Open opens (or creates) the trace database at path
func Open(path string) (*Recorder, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	r := &Recorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	return r, nil
}

// Close closes the database
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id        TEXT PRIMARY KEY,
		peers     INTEGER NOT NULL,
		admission TEXT NOT NULL,
		started   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		process     INTEGER NOT NULL,
		round       INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		clock_owner INTEGER NOT NULL,
		clock_value INTEGER NOT NULL,
		at          INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// NewRun registers a new session and returns its id
func (r *Recorder) NewRun(peers int, admission string) (string, error) {
	id := uuid.NewString()
	err := retryOnContention(func() error {
		_, err := r.db.Exec(
			`INSERT INTO runs (id, peers, admission, started) VALUES (?, ?, ?, ?)`,
			id, peers, admission, time.Now().UnixNano(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	Logger.Infof("recording run %s (%d peers, %s)", id, peers, admission)
	return id, nil
}

// RecordEnter stores the admission of process with the clock of its request
func (r *Recorder) RecordEnter(runID string, process, round int, clock lclock.Clock, at time.Time) error {
	return r.record(runID, process, round, KindEnter, clock, at)
}

// RecordExit stores the end of the critical work of process
func (r *Recorder) RecordExit(runID string, process, round int, clock lclock.Clock, at time.Time) error {
	return r.record(runID, process, round, KindExit, clock, at)
}

func (r *Recorder) record(runID string, process, round int, kind Kind, clock lclock.Clock, at time.Time) error {
	err := retryOnContention(func() error {
		_, err := r.db.Exec(
			`INSERT INTO events (run_id, process, round, kind, clock_owner, clock_value, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, process, round, string(kind), clock.Owner, int64(clock.Value), at.UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s event of %d: %w", kind, process, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// Runs lists all recorded sessions, oldest first
func (r *Recorder) Runs() ([]Run, error) {
	rows, err := r.db.Query(`SELECT id, peers, admission, started FROM runs ORDER BY started`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started int64
		if err := rows.Scan(&run.ID, &run.Peers, &run.Admission, &started); err != nil {
			return nil, err
		}
		run.Started = time.Unix(0, started)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the events of a run ordered by time
func (r *Recorder) Events(runID string) ([]Event, error) {
	var exists int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	rows, err := r.db.Query(
		`SELECT seq, run_id, process, round, kind, clock_owner, clock_value, at
		 FROM events WHERE run_id = ? ORDER BY at, seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		var value, at int64
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Process, &e.Round, &kind, &e.Clock.Owner, &value, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Clock.Value = uint64(value)
		e.At = time.Unix(0, at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --------------------------------------------------------------------------
// Verification
// --------------------------------------------------------------------------

// Interval is one critical region occupation reconstructed from the trace
type Interval struct {
	Process int
	Round   int
	Clock   lclock.Clock
	Enter   time.Time
	Exit    time.Time // zero if the exit was never recorded
}

// Result is the outcome of Verify
type Result struct {
	RunID string
	// Grants is the number of ENTER events
	Grants int
	// Open counts intervals without an EXIT
	Open int
	// Overlaps lists pairs of intervals that occupied the region together
	Overlaps [][2]Interval
	// OutOfOrder lists grants whose clock is not above the previous grant
	OutOfOrder []Interval
}

// OK reports whether the run kept mutual exclusion and Lamport order
func (r *Result) OK() bool {
	return len(r.Overlaps) == 0 && len(r.OutOfOrder) == 0
}

// Verify reconstructs the critical region intervals of a run and checks that
// no two of them overlap and that the grants follow the total order of the
// request clocks.
func (r *Recorder) Verify(runID string) (*Result, error) {
	events, err := r.Events(runID)
	if err != nil {
		return nil, err
	}

	type key struct{ process, round int }
	open := make(map[key]int)
	var intervals []Interval

	for _, e := range events {
		k := key{e.Process, e.Round}
		switch e.Kind {
		case KindEnter:
			open[k] = len(intervals)
			intervals = append(intervals, Interval{Process: e.Process, Round: e.Round, Clock: e.Clock, Enter: e.At})
		case KindExit:
			idx, ok := open[k]
			if !ok {
				return nil, fmt.Errorf("exit of process %d round %d without enter", e.Process, e.Round)
			}
			intervals[idx].Exit = e.At
			delete(open, k)
		default:
			return nil, fmt.Errorf("unknown event kind %q", e.Kind)
		}
	}

	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Enter.Before(intervals[j].Enter)
	})

	result := &Result{RunID: runID, Grants: len(intervals), Open: len(open)}
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if prev.Exit.IsZero() || cur.Enter.Before(prev.Exit) {
			result.Overlaps = append(result.Overlaps, [2]Interval{prev, cur})
		}
		if !prev.Clock.Less(cur.Clock) {
			result.OutOfOrder = append(result.OutOfOrder, cur)
		}
	}

	Logger.Infof("verified run %s: %d grants, %d overlaps, %d out of order",
		runID, result.Grants, len(result.Overlaps), len(result.OutOfOrder))
	return result, nil
}
