package postgres

import (
	"slices"
	"testing"
	"testing/fstest"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "polyvol"})
	if got != "postgres://u:p@db:5432/polyvol?sslmode=disable" {
		t.Fatalf("got %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x"}); got != "postgres://x" {
		t.Fatalf("explicit dsn: %q", got)
	}
	got = DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p@ss/word", Database: "polyvol", SSLMode: "require"})
	if got != "postgres://u:p%40ss%2Fword@db:6543/polyvol?sslmode=require" {
		t.Fatalf("escaped: %q", got)
	}
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_b.sql": {Data: []byte("select 2")},
		"migrations/001_a.sql": {Data: []byte("select 1")},
		"migrations/003_c.sql": {Data: []byte("select 3")},
		"migrations/README.md": {Data: []byte("notes")},
		"migrations/sub/x.sql": {Data: []byte("select 4")},
	}
	got, err := pendingMigrations(fsys, map[string]bool{"002_b.sql": true})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"001_a.sql", "003_c.sql"}; !slices.Equal(got, want) {
		t.Fatalf("pending=%v want %v", got, want)
	}

	got, err = pendingMigrations(migrationsFS, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"001_daily_scores.sql"}) {
		t.Fatalf("embedded pending=%v", got)
	}
}

func TestScoreRows(t *testing.T) {
	rows, err := scoreRows([]domain.DayScore{
		{Time: "2025-01-01", Value: 1.5},
		{Time: "2025-01-02", Value: 9, Events: []domain.HighlightEvent{{Title: "Q", Value: -11}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(rows[0].events) != "[]" {
		t.Fatalf("empty events=%s", rows[0].events)
	}
	if string(rows[1].events) != `[{"title":"Q","value":-11}]` {
		t.Fatalf("events=%s", rows[1].events)
	}
	if rows[1].day.Day() != 2 {
		t.Fatalf("day=%v", rows[1].day)
	}

	if _, err := scoreRows([]domain.DayScore{{Time: "01/02/2025"}}); err == nil {
		t.Fatal("expected error for malformed day")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_daily_scores.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("empty migration")
	}
}
