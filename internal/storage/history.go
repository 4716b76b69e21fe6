package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Iteration is one optimization iteration as kept in the history database.
type Iteration struct {
	Number         int
	Objective      float64
	AbsoluteChange float64
	RelativeChange float64
	StepSize       float64
	Values         map[string]float64
	Recorded       time.Time
}

// History is the SQLite database of an optimization run.
type History struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func (h *History) Path() string { return h.path }

func (h *History) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.path == "" {
		return errors.New("history database path is required")
	}
	if h.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", h.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createHistoryTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	h.db = db
	return nil
}

func createHistoryTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS iterations (
			number INTEGER PRIMARY KEY,
			objective REAL NOT NULL,
			abs_change REAL NOT NULL,
			rel_change REAL NOT NULL,
			step_size REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS response_values (
			iteration INTEGER NOT NULL,
			identifier TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (iteration, identifier)
		);
	`)
	return err
}

// Record stores it, replacing an earlier record of the same iteration.
func (h *History) Record(ctx context.Context, it Iteration) error {
	db, err := h.getDB()
	if err != nil {
		return err
	}
	if it.Recorded.IsZero() {
		it.Recorded = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO iterations (number, objective, abs_change, rel_change, step_size, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			objective = excluded.objective,
			abs_change = excluded.abs_change,
			rel_change = excluded.rel_change,
			step_size = excluded.step_size,
			recorded_at = excluded.recorded_at
	`, it.Number, it.Objective, it.AbsoluteChange, it.RelativeChange, it.StepSize, it.Recorded.UnixNano())
	if err != nil {
		return fmt.Errorf("record iteration %d: %w", it.Number, err)
	}
	for id, v := range it.Values {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO response_values (iteration, identifier, value)
			VALUES (?, ?, ?)
			ON CONFLICT(iteration, identifier) DO UPDATE SET value = excluded.value
		`, it.Number, id, v)
		if err != nil {
			return fmt.Errorf("record %s of iteration %d: %w", id, it.Number, err)
		}
	}
	return tx.Commit()
}

// Iterations returns the recorded iterations in order.
func (h *History) Iterations(ctx context.Context) ([]Iteration, error) {
	db, err := h.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT number, objective, abs_change, rel_change, step_size, recorded_at
		FROM iterations ORDER BY number
	`)
	if err != nil {
		return nil, err
	}
	var out []Iteration
	index := make(map[int]int)
	for rows.Next() {
		var it Iteration
		var recorded int64
		if err := rows.Scan(&it.Number, &it.Objective, &it.AbsoluteChange, &it.RelativeChange, &it.StepSize, &recorded); err != nil {
			rows.Close()
			return nil, err
		}
		it.Recorded = time.Unix(0, recorded)
		it.Values = make(map[string]float64)
		index[it.Number] = len(out)
		out = append(out, it)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `SELECT iteration, identifier, value FROM response_values`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		var id string
		var v float64
		if err := rows.Scan(&n, &id, &v); err != nil {
			return nil, err
		}
		if i, ok := index[n]; ok {
			out[i].Values[id] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *History) getDB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil {
		return nil, errors.New("history database is not initialized")
	}
	return h.db, nil
}
