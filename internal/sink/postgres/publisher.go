// Package postgres implements the sink.Publisher contract on top of a
// pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"tabmerge/internal/sink"
)

// Publisher publishes merged rows into a Postgres table. Idempotent
// reprocessing relies on ON CONFLICT DO NOTHING over a UNIQUE constraint
// created alongside the table.
type Publisher struct {
	pool *pgxpool.Pool
}

func init() {
	sink.Register("postgres", New)
}

// New creates a Postgres-backed Publisher.
func New(ctx context.Context, cfg sink.Config) (sink.Publisher, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Publisher{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Publisher) Close() {
	p.pool.Close()
}

// EnsureTable creates the target table if needed. With dedupeColumns a
// UNIQUE constraint backs the ON CONFLICT insert path.
func (p *Publisher) EnsureTable(ctx context.Context, table string, columns []sink.Column, dedupeColumns []string) error {
	ddl := buildCreateSQL(table, columns, dedupeColumns)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertRows inserts rows in one multi-row statement.
func (p *Publisher) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sqlText, args := buildInsertSQL(table, columns, rows, dedupeColumns)

	cmd, err := p.pool.Exec(ctx, sqlText, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// buildCreateSQL constructs the CREATE TABLE IF NOT EXISTS statement.
// Pure and deterministic so DDL shape is unit-testable without a database.
func buildCreateSQL(table string, columns []sink.Column, dedupeColumns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.Name))
		if c.Numeric {
			b.WriteString(" DOUBLE PRECISION")
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
			b.WriteString(pgIdent(c))
		}
		b.WriteString(")")
	}
	b.WriteString(");")
	return b.String()
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and ON
//     CONFLICT behavior are unit-testable without a database.
func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	// Dedupe makes the publish tolerant of duplicate rows within the same
	// batch and idempotent across reruns of the same dataset.
	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args
}

// pgIdent quotes a Postgres identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
