package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Order(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_loans.sql": {Data: []byte("CREATE TABLE loans ();")},
		"migrations/001_init.sql":  {Data: []byte("CREATE TABLE users ();")},
		"migrations/README.md":     {Data: []byte("not sql")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2", len(got))
	}
	if got[0].version != "001_init.sql" || got[1].version != "002_loans.sql" {
		t.Errorf("order = %s, %s", got[0].version, got[1].version)
	}
	if got[1].sql != "CREATE TABLE loans ();" {
		t.Errorf("sql = %q", got[1].sql)
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	got, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) == 0 || got[0].version != "001_init.sql" {
		t.Fatalf("embedded migrations = %+v", got)
	}
	for _, table := range []string{"users", "books", "loans", "sessions"} {
		if !strings.Contains(got[0].sql, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("001_init.sql does not create %s", table)
		}
	}
}
