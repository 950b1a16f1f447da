package migrate

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	got := splitStatements("create table a (x text);\n\ninsert into a values ('x;y');\n  ;\nselect 1")
	want := []string{
		"create table a (x text)",
		"insert into a values ('x;y')",
		"select 1",
	}
	if len(got) != len(want) {
		t.Fatalf("splitStatements() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("create table b (y text);")},
		"0001_first.sql":  {Data: []byte("create table a (x text);")},
		"README.md":       {Data: []byte("ignored")},
	}
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (y text)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations(name, applied_at) values ($1, $2)")).
		WithArgs("0002_second.sql", fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := NewManager(db, fsys, WithClock(func() time.Time { return fixed }))
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{"0001_first.sql": {Data: []byte("create table a (x text);")}}

	mock.ExpectExec("create table if not exists custom_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from custom_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table a (x text)")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	mgr := NewManager(db, fsys, WithMigrationsTable("custom_migrations"))
	if err := mgr.Up(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_first.sql":  {Data: []byte("select 1;")},
		"0002_second.sql": {Data: []byte("select 2;")},
	}

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by name asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.sql"))

	pending, err := NewManager(db, fsys).Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "0002_second.sql" {
		t.Fatalf("Pending() = %v, want [0002_second.sql]", pending)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
