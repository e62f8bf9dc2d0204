// Package migrate applies plain-SQL schema migrations and seed files from
// disk, tracking history in a single bookkeeping table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const historyTable = "migration_history"

const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner executes migrations and seeds against a database/sql pool.
type Runner struct {
	db     *sql.DB
	sqlDir string
	seeds  string
}

// NewRunner points a Runner at the migration and seed directories.
func NewRunner(db *sql.DB, sqlDir, seedsDir string) *Runner {
	return &Runner{db: db, sqlDir: sqlDir, seeds: seedsDir}
}

// Apply runs every pending *.up.sql file in lexical order. Each file runs in
// its own transaction and is recorded on success.
func (r *Runner) Apply(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	done, err := r.applied(ctx, kindMigration)
	if err != nil {
		return err
	}
	names, err := listSQL(r.sqlDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.runFile(ctx, filepath.Join(r.sqlDir, name)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if err := r.record(ctx, kindMigration, name); err != nil {
			return err
		}
	}
	return nil
}

// Rollback undoes the most recently applied migration via its .down.sql twin.
func (r *Runner) Rollback(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	history, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("nothing to roll back")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	downPath := filepath.Join(r.sqlDir, down)
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("no down migration for %s", last)
	}
	if err := r.runFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		`delete from `+historyTable+` where kind=$1 and name=$2`, kindMigration, last)
	return err
}

// Seed runs every pending seed file. Seeds are expected to be idempotent SQL
// but are still recorded so they run once.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	done, err := r.applied(ctx, kindSeed)
	if err != nil {
		return err
	}
	names, err := listSQL(r.seeds, ".sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.runFile(ctx, filepath.Join(r.seeds, name)); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		if err := r.record(ctx, kindSeed, name); err != nil {
			return err
		}
	}
	return nil
}

// Applied returns applied migration names in order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind=$1 order by applied_at asc`, kindMigration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		create table if not exists `+historyTable+` (
			kind text not null,
			name text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		)`)
	return err
}

func (r *Runner) applied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind=$1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (r *Runner) record(ctx context.Context, kind, name string) error {
	_, err := r.db.ExecContext(ctx,
		`insert into `+historyTable+`(kind, name) values($1,$2)`, kind, name)
	return err
}

func (r *Runner) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks SQL on semicolons outside single-quoted strings.
// Good enough for the DDL and seeds this project carries.
func splitStatements(script string) []string {
	var (
		out      []string
		cur      strings.Builder
		inString bool
	)
	for _, r := range script {
		cur.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				out = append(out, cur.String())
				cur.Reset()
			}
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}
