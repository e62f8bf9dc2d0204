package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	script := `create table t(x text);
insert into t(x) values ('a;b');
insert into t(x) values ('c')`

	stmts := splitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "'a;b'") {
		t.Fatalf("semicolon inside a string literal must not split: %q", stmts[1])
	}
}

func TestListSQLFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_two.up.sql", "0001_one.up.sql", "0001_one.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	names, err := listSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("listSQL: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_one.up.sql" || names[1] != "0002_two.up.sql" {
		t.Fatalf("unexpected listing: %v", names)
	}

	if names, err := listSQL(filepath.Join(dir, "missing"), ".sql"); err != nil || names != nil {
		t.Fatalf("missing dir must be empty, got %v, %v", names, err)
	}
}

func TestApplyRunsPendingMigrationsOnce(t *testing.T) {
	dir := t.TempDir()
	script := "create table a(x int);\ncreate table b(y int);"
	if err := os.WriteFile(filepath.Join(dir, "0001_init.up.sql"), []byte(script), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "0002_extra.up.sql"), []byte("create table c(z int);"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists migration_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// 0002 is already recorded; only 0001 should run.
	mock.ExpectQuery("select name from migration_history where kind").
		WithArgs(kindMigration).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0002_extra.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into migration_history").
		WithArgs(kindMigration, "0001_init.up.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	runner := NewRunner(db, dir, "")
	if err := runner.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
