// Package mssql implements the sink.Publisher contract for Microsoft SQL
// Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"tabmerge/internal/sink"
)

// Publisher publishes merged rows into a SQL Server table.
//
// Idempotent reprocessing uses INSERT ... SELECT ... WHERE NOT EXISTS per
// value tuple: SQL Server has no ON CONFLICT, and MERGE is overkill for an
// append-only publish.
type Publisher struct {
	db *sql.DB
}

func init() {
	sink.Register("mssql", New)
}

// New constructs a Publisher using the "sqlserver" driver and validates
// connectivity via PingContext.
func New(ctx context.Context, cfg sink.Config) (sink.Publisher, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty batch publishing.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

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

// InsertRows inserts rows, chunking statements to respect SQL Server's
// 2100-parameter limit.
func (p *Publisher) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// Each row consumes len(columns) parameters; stay under the limit with
	// room to spare.
	maxRows := 2000 / max(1, len(columns))
	if maxRows < 1 {
		maxRows = 1
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		var q string
		var args []any
		if len(dedupeColumns) > 0 {
			q, args = buildInsertNotExistsSQL(table, columns, part, dedupeColumns)
		} else {
			q, args = buildInsertSQL(table, columns, part)
		}

		res, err := p.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func buildCreateSQL(table string, columns []sink.Column, dedupeColumns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE ", strings.ReplaceAll(table, "'", "''"))
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c.Name))
		if c.Numeric {
			b.WriteString(" FLOAT")
		} else {
			b.WriteString(" NVARCHAR(MAX)")
		}
		// UNIQUE requires a bounded key type.
		if !c.Numeric && contains(dedupeColumns, c.Name) {
			b.WriteString(" COLLATE DATABASE_DEFAULT")
		}
	}
	b.WriteString(")")
	return b.String()
}

// buildInsertSQL constructs a plain multi-row INSERT with @pN placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, sql.Named(fmt.Sprintf("p%d", p), row[j]))
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// buildInsertNotExistsSQL constructs one INSERT ... SELECT ... WHERE NOT
// EXISTS per row, joined as a single batch statement. Pure so placeholder
// numbering is unit-testable without a database.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	colPos := make(map[string]int, len(columns))
	for i, c := range columns {
		colPos[c] = i
	}

	p := 1
	for _, row := range rows {
		b.WriteString("INSERT INTO ")
		b.WriteString(msIdent(table))
		b.WriteString(" (")
		for i, c := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(msIdent(c))
		}
		b.WriteString(") SELECT ")

		rowParams := make([]string, len(columns))
		for j := range columns {
			name := fmt.Sprintf("p%d", p)
			rowParams[j] = "@" + name
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("@" + name)
			args = append(args, sql.Named(name, row[j]))
			p++
		}

		b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
		b.WriteString(msIdent(table))
		b.WriteString(" WHERE ")
		for i, dc := range dedupeColumns {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(msIdent(dc))
			b.WriteString(" = ")
			b.WriteString(rowParams[colPos[dc]])
		}
		b.WriteString("); ")
	}
	return strings.TrimSpace(b.String()), args
}

// msIdent quotes a SQL Server identifier.
func msIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
