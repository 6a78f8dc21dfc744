package sqlite

import (
	"reflect"
	"testing"

	"tabmerge/internal/sink"
)

func TestBuildCreateSQL(t *testing.T) {
	cols := []sink.Column{
		{Name: "id", Numeric: true},
		{Name: "label", Numeric: false},
	}

	got := buildCreateSQL("merged", cols, nil)
	want := `CREATE TABLE IF NOT EXISTS merged ("id" REAL, "label" TEXT)`
	if got != want {
		t.Fatalf("ddl = %q, want %q", got, want)
	}

	got = buildCreateSQL("merged", cols, []string{"id"})
	want = `CREATE TABLE IF NOT EXISTS merged ("id" REAL, "label" TEXT, UNIQUE ("id"))`
	if got != want {
		t.Fatalf("ddl = %q, want %q", got, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	rows := [][]any{
		{float64(1), "a"},
		{float64(2), nil},
	}

	q, args := buildInsertSQL("merged", []string{"id", "label"}, rows, false)
	wantQ := `INSERT INTO merged ("id", "label") VALUES (?, ?), (?, ?)`
	if q != wantQ {
		t.Fatalf("sql = %q, want %q", q, wantQ)
	}
	wantArgs := []any{float64(1), "a", float64(2), nil}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}

	q, _ = buildInsertSQL("merged", []string{"id"}, [][]any{{float64(1)}}, true)
	if q != `INSERT OR IGNORE INTO merged ("id") VALUES (?)` {
		t.Fatalf("dedupe sql = %q", q)
	}
}

func TestSqlIdent(t *testing.T) {
	if got := sqlIdent(`col"umn`); got != `"col""umn"` {
		t.Fatalf("sqlIdent = %q", got)
	}
}
