// Package store persists solved run sets in SQLite and exports trajectories
// as CSV and JSON.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/daniacca/cmsim/internal/solver"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a run set does not exist.
var ErrNotFound = errors.New("run set not found")

// Store persists run sets in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and creates its tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRunSet stores a run set with its statuses and trajectories in one
// transaction.
func (s *Store) SaveRunSet(ctx context.Context, rs RunSet) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(rs.ID) == "" {
		return fmt.Errorf("run set id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	createdAt := rs.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO run_sets (id, model, algorithm, runs, duration, samples, seed, completed, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.Model, rs.Algorithm, rs.Runs, rs.Duration, rs.Samples, int64(rs.Seed), rs.Completed, rs.Failed, toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("insert run set: %w", err)
	}

	for _, st := range rs.Statuses {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO run_status (run_set_id, run, state, error, reaction, steps, sim_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rs.ID, st.Run, st.State, st.Error, st.Reaction, st.Steps, st.SimTime,
		); err != nil {
			return fmt.Errorf("insert run status: %w", err)
		}
	}

	timeStmt, err := tx.PrepareContext(ctx, `INSERT INTO sample_times (run_set_id, idx, time) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample times: %w", err)
	}
	defer timeStmt.Close()
	for i, t := range rs.Times {
		if _, err = timeStmt.ExecContext(ctx, rs.ID, i, t); err != nil {
			return fmt.Errorf("insert sample time: %w", err)
		}
	}

	sampleStmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (run_set_id, ord, species, run, idx, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare samples: %w", err)
	}
	defer sampleStmt.Close()
	for ord, tr := range rs.Trajectories {
		for i, v := range tr.Values {
			if _, err = sampleStmt.ExecContext(ctx, rs.ID, ord, tr.Species, tr.Run, i, v); err != nil {
				return fmt.Errorf("insert sample: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run set: %w", err)
	}
	return nil
}

// ListRunSets returns every stored run set, newest first.
func (s *Store) ListRunSets(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, model, algorithm, runs, completed, failed, seed, created_at FROM run_sets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list run sets: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var seed, createdAt int64
		if err := rows.Scan(&info.ID, &info.Model, &info.Algorithm, &info.Runs, &info.Completed, &info.Failed, &seed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run set: %w", err)
		}
		info.Seed = uint64(seed)
		info.CreatedAt = fromMillis(createdAt)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run sets: %w", err)
	}
	return out, nil
}

// LoadRunSet reads a run set with its statuses and trajectories.
func (s *Store) LoadRunSet(ctx context.Context, id string) (RunSet, error) {
	if err := ctx.Err(); err != nil {
		return RunSet{}, err
	}

	var rs RunSet
	var seed, createdAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, model, algorithm, runs, duration, samples, seed, completed, failed, created_at FROM run_sets WHERE id = ?`, id,
	).Scan(&rs.ID, &rs.Model, &rs.Algorithm, &rs.Runs, &rs.Duration, &rs.Samples, &seed, &rs.Completed, &rs.Failed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RunSet{}, fmt.Errorf("get run set: %w", err)
	}
	rs.Seed = uint64(seed)
	rs.CreatedAt = fromMillis(createdAt)

	if rs.Statuses, err = s.loadStatuses(ctx, id); err != nil {
		return RunSet{}, err
	}
	if rs.Times, err = s.loadTimes(ctx, id); err != nil {
		return RunSet{}, err
	}
	if rs.Trajectories, err = s.loadTrajectories(ctx, id, len(rs.Times)); err != nil {
		return RunSet{}, err
	}
	return rs, nil
}

func (s *Store) loadStatuses(ctx context.Context, id string) ([]RunStatus, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT run, state, error, reaction, steps, sim_time FROM run_status WHERE run_set_id = ? ORDER BY run`, id)
	if err != nil {
		return nil, fmt.Errorf("get run statuses: %w", err)
	}
	defer rows.Close()
	var out []RunStatus
	for rows.Next() {
		var st RunStatus
		if err := rows.Scan(&st.Run, &st.State, &st.Error, &st.Reaction, &st.Steps, &st.SimTime); err != nil {
			return nil, fmt.Errorf("scan run status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) loadTimes(ctx context.Context, id string) ([]float64, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT time FROM sample_times WHERE run_set_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("get sample times: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan sample time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) loadTrajectories(ctx context.Context, id string, samples int) ([]solver.Trajectory, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT ord, species, run, value FROM samples WHERE run_set_id = ? ORDER BY ord, idx`, id)
	if err != nil {
		return nil, fmt.Errorf("get samples: %w", err)
	}
	defer rows.Close()

	var out []solver.Trajectory
	last := -1
	for rows.Next() {
		var ord, run int
		var species string
		var value float64
		if err := rows.Scan(&ord, &species, &run, &value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if ord != last {
			out = append(out, solver.Trajectory{
				Label:   solver.Label(species, run),
				Species: species,
				Run:     run,
				Values:  make([]float64, 0, samples),
			})
			last = ord
		}
		tr := &out[len(out)-1]
		tr.Values = append(tr.Values, value)
	}
	return out, rows.Err()
}

// DeleteRunSet removes a run set and everything recorded for it.
func (s *Store) DeleteRunSet(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM run_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run set: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
