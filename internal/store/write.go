package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gwt/internal/gotest"
)

// Run is one recorded test run.
type Run struct {
	ID       string   `json:"id"`
	Seq      int64    `json:"seq"`
	Packages []string `json:"packages"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Total    int      `json:"total"`
}

// Clause is one recorded Then clause result.
type Clause struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"`
	Package   string `json:"package"`
	Scenario  string `json:"scenario"`
	Clause    string `json:"clause"`
	Outcome   string `json:"outcome"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Output    string `json:"output"`
}

// WriteRun records a summarised run under id and returns it with its seq.
// The run's seq is one past the highest recorded seq; clause seqs follow
// the order of sum.Clauses, starting at 1.
//
// Writing an id that already exists is a no-op that returns the stored
// run, so retried recordings never duplicate rows.
func (s *Store) WriteRun(ctx context.Context, id string, sum *gotest.Summary) (Run, error) {
	if id == "" {
		return Run{}, fmt.Errorf("write run: id is required")
	}
	pkgsJSON, err := marshalPackages(sum.Packages)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	existing, err := readRun(ctx, tx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	run := Run{
		ID:       id,
		Seq:      seq,
		Packages: append([]string{}, sum.Packages...),
		Passed:   sum.Passed,
		Failed:   sum.Failed,
		Skipped:  sum.Skipped,
		Total:    sum.Total(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, packages, passed, failed, skipped, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		pkgsJSON,
		run.Passed,
		run.Failed,
		run.Skipped,
		run.Total,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clauses
		(run_id, seq, package, scenario, clause, outcome, elapsed_ms, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Run{}, fmt.Errorf("write run: prepare clauses: %w", err)
	}
	defer stmt.Close()

	for i, c := range sum.Clauses {
		_, err := stmt.ExecContext(ctx,
			id,
			int64(i+1),
			c.Package,
			c.Scenario,
			c.Clause,
			string(c.Outcome),
			c.Elapsed.Milliseconds(),
			c.Output,
		)
		if err != nil {
			return Run{}, fmt.Errorf("write run: clause %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

// DeleteRun removes a run and its clauses. Deleting an unknown id is not
// an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
