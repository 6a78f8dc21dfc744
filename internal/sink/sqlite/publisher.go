// Package sqlite implements the sink.Publisher contract on
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tabmerge/internal/sink"
)

// Publisher publishes merged rows into a SQLite table.
//
// SQLite has no typed columns in the Postgres sense; REAL/TEXT affinity is
// declared anyway so downstream tooling sees the intent. Idempotent
// reprocessing uses INSERT OR IGNORE, which relies on the UNIQUE
// constraint created by EnsureTable.
type Publisher struct {
	db *sql.DB
}

func init() {
	sink.Register("sqlite", New)
}

// New opens (creating if needed) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg sink.Config) (sink.Publisher, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Publisher{db: db}, nil
}

func (p *Publisher) Close() { _ = p.db.Close() }

func (p *Publisher) EnsureTable(ctx context.Context, table string, columns []sink.Column, dedupeColumns []string) error {
	ddl := buildCreateSQL(table, columns, dedupeColumns)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (p *Publisher) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q, args := buildInsertSQL(table, columns, rows, len(dedupeColumns) > 0)

	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func buildCreateSQL(table string, columns []sink.Column, dedupeColumns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		if c.Numeric {
			b.WriteString(" REAL")
		} else {
			b.WriteString(" TEXT")
		}
	}
	if len(dedupeColumns) > 0 {
		b.WriteString(", UNIQUE (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sqlIdent(c))
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

// buildInsertSQL constructs a multi-row insert. Dedupe uses OR IGNORE,
// which relies on the table's UNIQUE/PK constraints.
func buildInsertSQL(table string, columns []string, rows [][]any, dedupe bool) (string, []any) {
	var b strings.Builder
	if dedupe {
		b.WriteString("INSERT OR IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// sqlIdent quotes a SQLite identifier.
func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
