// Package recording writes simulation runs to a SQLite analysis log.
//
// The log is write-only from the engine's point of view: nothing reads it
// back into a running simulation. A Recorder is an engine.Observer; attach
// it with Engine.AddObserver after BeginRun.
package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/mode"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoRun is returned when a run-scoped call happens before BeginRun.
var ErrNoRun = errors.New("recording: no active run")

// RunInfo describes one recorded run.
type RunInfo struct {
	ID        string     `json:"id"`
	Regime    string     `json:"regime"`
	Seed      uint64     `json:"seed"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Steps     int64      `json:"steps"`
}

// Summary counts what a run recorded.
type Summary struct {
	RunID       string `json:"run_id"`
	Steps       int64  `json:"steps"`
	Spikes      int64  `json:"spikes"`
	Samples     int64  `json:"samples"`
	Transitions int64  `json:"transitions"`
	Rejected    int64  `json:"rejected"`
}

// Recorder owns a SQLite database of runs.
type Recorder struct {
	mu          sync.Mutex
	db          *sql.DB
	path        string
	sampleEvery int64

	runID  string
	labels []string
	seq    int64
	steps  int64
	err    error
}

// Open creates or opens the database at path. Potentials are sampled every
// sampleEvery steps; values below one record every step.
func Open(path string, sampleEvery int) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Recorder{db: db, path: path, sampleEvery: int64(sampleEvery)}, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.path
}

// BeginRun starts a new run and returns its ID. labels maps neuron index to
// display label.
func (r *Recorder) BeginRun(ctx context.Context, regime string, seed uint64, labels []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, regime, seed, started_at) VALUES (?, ?, ?, ?)`,
		id, regime, int64(seed), time.Now().UTC().Format(timeLayout)); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	r.runID = id
	r.labels = append([]string(nil), labels...)
	r.seq = 0
	r.steps = 0
	r.err = nil
	return id, nil
}

// EndRun stamps the active run's end time and step count.
func (r *Recorder) EndRun(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runID == "" {
		return ErrNoRun
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, steps = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), r.steps, r.runID); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	r.runID = ""
	return r.err
}

// Err returns the first write error since BeginRun. Observer callbacks
// cannot return errors, so they park them here.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ObserveStep writes the step's spikes and, on sampling steps, every
// neuron's potential. Steps are counted per run, so an engine Reset inside
// a run does not reuse step numbers.
func (r *Recorder) ObserveStep(rep engine.StepReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runID == "" || r.err != nil {
		return
	}
	r.steps++
	sample := r.steps%r.sampleEvery == 0
	if len(rep.Spikes) == 0 && !sample {
		return
	}
	r.err = r.writeStep(context.Background(), rep, sample)
}

func (r *Recorder) writeStep(ctx context.Context, rep engine.StepReport, sample bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range rep.Spikes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spikes (run_id, neuron, label, time, phase_time) VALUES (?, ?, ?, ?, ?)`,
			r.runID, int(ev.Neuron), r.label(int(ev.Neuron)), ev.Time, ev.PhaseTime); err != nil {
			return fmt.Errorf("failed to insert spike: %w", err)
		}
	}

	if sample {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO samples (run_id, step, neuron, session, potential) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare sample insert: %w", err)
		}
		defer stmt.Close()
		for i, v := range rep.Potentials {
			if _, err := stmt.ExecContext(ctx, r.runID, r.steps, i, rep.Session, v); err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
		}
	}
	return tx.Commit()
}

// ObserveTransition writes one command result.
func (r *Recorder) ObserveTransition(res mode.Result, session float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runID == "" || r.err != nil {
		return
	}
	r.seq++
	if _, err := r.db.ExecContext(context.Background(),
		`INSERT INTO transitions (run_id, seq, command, accepted, from_state, to_state, reason, session)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, r.seq, string(res.Command), res.Accepted, res.From.String(), res.To.String(),
		res.Reason, session); err != nil {
		r.err = fmt.Errorf("failed to insert transition: %w", err)
	}
}

func (r *Recorder) label(i int) string {
	if i < len(r.labels) {
		return r.labels[i]
	}
	return fmt.Sprintf("n%d", i)
}

// Summarize counts the rows recorded for runID.
func (r *Recorder) Summarize(ctx context.Context, runID string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{RunID: runID}
	queries := []struct {
		dst   *int64
		query string
	}{
		{&s.Steps, `SELECT steps FROM runs WHERE id = ?`},
		{&s.Spikes, `SELECT COUNT(*) FROM spikes WHERE run_id = ?`},
		{&s.Samples, `SELECT COUNT(*) FROM samples WHERE run_id = ?`},
		{&s.Transitions, `SELECT COUNT(*) FROM transitions WHERE run_id = ?`},
		{&s.Rejected, `SELECT COUNT(*) FROM transitions WHERE run_id = ? AND accepted = 0`},
	}
	for _, q := range queries {
		if err := r.db.QueryRowContext(ctx, q.query, runID).Scan(q.dst); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Summary{}, fmt.Errorf("run %s not found", runID)
			}
			return Summary{}, fmt.Errorf("failed to summarize run: %w", err)
		}
	}
	if runID == r.runID {
		s.Steps = r.steps
	}
	return s, nil
}

// Runs lists recorded runs, newest first.
func (r *Recorder) Runs(ctx context.Context) ([]RunInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, regime, seed, started_at, ended_at, steps FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			seed    int64
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&info.ID, &info.Regime, &seed, &started, &ended, &info.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.Seed = uint64(seed)
		info.StartedAt, _ = time.Parse(timeLayout, started)
		if ended.Valid {
			t, _ := time.Parse(timeLayout, ended.String)
			info.EndedAt = &t
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// SpikeTimes returns recorded spike times for one neuron label, in order.
func (r *Recorder) SpikeTimes(ctx context.Context, runID, label string) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT time FROM spikes WHERE run_id = ? AND label = ? ORDER BY time`, runID, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query spikes: %w", err)
	}
	defer rows.Close()

	var times []float64
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan spike: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
