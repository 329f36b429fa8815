package store

import (
	"context"
	"database/sql"
	"fmt"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	return readRun(ctx, s.db, id)
}

func readRun(ctx context.Context, q queryer, id string) (Run, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, seq, packages, passed, failed, skipped, total
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns recorded runs, newest (highest seq) first. A limit of
// zero or less returns every run.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, seq, packages, passed, failed, skipped, total
		FROM runs
		ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadClauses returns the clause results of a run in seq order.
//
// Returns an empty slice (not nil) if the run has no clauses.
func (s *Store) ReadClauses(ctx context.Context, runID string) ([]Clause, error) {
	return s.queryClauses(ctx, `
		SELECT run_id, seq, package, scenario, clause, outcome, elapsed_ms, output
		FROM clauses
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadFailures returns the failed clauses of a run in seq order.
func (s *Store) ReadFailures(ctx context.Context, runID string) ([]Clause, error) {
	return s.queryClauses(ctx, `
		SELECT run_id, seq, package, scenario, clause, outcome, elapsed_ms, output
		FROM clauses
		WHERE run_id = ? AND outcome = 'fail'
		ORDER BY seq ASC
	`, runID)
}

func (s *Store) queryClauses(ctx context.Context, query string, args ...any) ([]Clause, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clauses: %w", err)
	}
	defer rows.Close()

	clauses := []Clause{}
	for rows.Next() {
		var c Clause
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Package, &c.Scenario, &c.Clause, &c.Outcome, &c.ElapsedMS, &c.Output); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		clauses = append(clauses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clauses: %w", err)
	}
	return clauses, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		pkgsJSON string
	)
	if err := row.Scan(&run.ID, &run.Seq, &pkgsJSON, &run.Passed, &run.Failed, &run.Skipped, &run.Total); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	pkgs, err := unmarshalPackages(pkgsJSON)
	if err != nil {
		return Run{}, err
	}
	run.Packages = pkgs
	return run, nil
}
