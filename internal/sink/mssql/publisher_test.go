package mssql

import (
	"strings"
	"testing"

	"tabmerge/internal/sink"
)

func TestBuildCreateSQL(t *testing.T) {
	cols := []sink.Column{
		{Name: "id", Numeric: true},
		{Name: "label", Numeric: false},
	}

	got := buildCreateSQL("merged", cols, nil)
	want := "IF OBJECT_ID(N'merged', N'U') IS NULL CREATE TABLE [merged] ([id] FLOAT, [label] NVARCHAR(MAX))"
	if got != want {
		t.Fatalf("ddl = %q, want %q", got, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	rows := [][]any{
		{float64(1), "a"},
		{float64(2), "b"},
	}

	q, args := buildInsertSQL("merged", []string{"id", "label"}, rows)
	wantQ := "INSERT INTO [merged] ([id], [label]) VALUES (@p1, @p2), (@p3, @p4)"
	if q != wantQ {
		t.Fatalf("sql = %q, want %q", q, wantQ)
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
}

func TestBuildInsertNotExistsSQL(t *testing.T) {
	rows := [][]any{
		{float64(1), "a"},
		{float64(2), "b"},
	}

	q, args := buildInsertNotExistsSQL("merged", []string{"id", "label"}, rows, []string{"id"})

	if got := strings.Count(q, "INSERT INTO [merged]"); got != 2 {
		t.Fatalf("statements = %d, want one per row:\n%s", got, q)
	}
	if !strings.Contains(q, "WHERE NOT EXISTS (SELECT 1 FROM [merged] WHERE [id] = @p1)") {
		t.Fatalf("first dedupe clause missing:\n%s", q)
	}
	// Placeholder numbering continues across rows.
	if !strings.Contains(q, "WHERE [id] = @p3)") {
		t.Fatalf("second dedupe clause missing:\n%s", q)
	}
	if strings.HasSuffix(q, " ") {
		t.Fatalf("trailing whitespace in batch statement")
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
}

func TestMsIdent(t *testing.T) {
	if got := msIdent("plain"); got != "[plain]" {
		t.Fatalf("msIdent = %q", got)
	}
	if got := msIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("msIdent = %q", got)
	}
}
