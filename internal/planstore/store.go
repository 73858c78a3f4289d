// Package planstore caches fetched execution plans in SQLite so the
// dashboard can show a spec's batch layout before the runner is
// reachable. Plans are external inputs; run history is never stored.
package planstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stackmesh/runboard/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed plan caching
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePlan replaces the cached plan for a spec
func (s *Store) SavePlan(plan *domain.Plan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM plan_batches WHERE spec = ?`, plan.Spec); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO plans (spec, fetched_at) VALUES (?, ?)
		ON CONFLICT(spec) DO UPDATE SET fetched_at = excluded.fetched_at
	`, plan.Spec, time.Now()); err != nil {
		return err
	}

	for i, b := range plan.Batches {
		tasksJSON, err := json.Marshal(b.Tasks)
		if err != nil {
			return err
		}
		depsJSON, err := json.Marshal(b.DependsOn)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO plan_batches (spec, position, id, name, tasks, depends_on, model, estimated_cost, estimated_minutes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, plan.Spec, i, b.ID, b.Name, string(tasksJSON), string(depsJSON), b.Model, b.EstimatedCost, b.EstimatedMins); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetPlan returns the cached plan for a spec, or nil if absent
func (s *Store) GetPlan(spec string) (*domain.Plan, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM plans WHERE spec = ?`, spec).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT id, name, tasks, depends_on, model, estimated_cost, estimated_minutes
		FROM plan_batches WHERE spec = ? ORDER BY position
	`, spec)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plan := &domain.Plan{Spec: spec}
	for rows.Next() {
		var b domain.PlanBatch
		var tasksJSON, depsJSON string
		if err := rows.Scan(&b.ID, &b.Name, &tasksJSON, &depsJSON, &b.Model, &b.EstimatedCost, &b.EstimatedMins); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tasksJSON), &b.Tasks); err != nil {
			return nil, fmt.Errorf("decoding tasks for %s/%s: %w", spec, b.ID, err)
		}
		if err := json.Unmarshal([]byte(depsJSON), &b.DependsOn); err != nil {
			return nil, fmt.Errorf("decoding deps for %s/%s: %w", spec, b.ID, err)
		}
		plan.Batches = append(plan.Batches, b)
	}
	return plan, rows.Err()
}

// FetchedAt returns when a spec's plan was last cached
func (s *Store) FetchedAt(spec string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(`SELECT fetched_at FROM plans WHERE spec = ?`, spec).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, err
}

// ListSpecs returns all cached spec names
func (s *Store) ListSpecs() ([]string, error) {
	rows, err := s.db.Query(`SELECT spec FROM plans ORDER BY spec`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []string
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// DeletePlan removes a cached plan
func (s *Store) DeletePlan(spec string) error {
	_, err := s.db.Exec(`DELETE FROM plans WHERE spec = ?`, spec)
	return err
}
