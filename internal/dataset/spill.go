package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// Spill is a Store backed by an append-only SQLite segment on disk.
//
// It exists for merges whose row volume should not live on the heap: rows
// are buffered in small batches and flushed into a single-table database.
// The contract is identical to Memory; callers never see the difference.
//
// Notes on SQLite specifics (mirroring what we learned elsewhere):
//   - modernc.org/sqlite is CGo-free, so a spill file works anywhere the
//     binary runs.
//   - Rows are stored as a JSON cell array in a BLOB column. Seq ordering
//     is the append order.
type Spill struct {
	db      *sql.DB
	path    string
	ownPath bool

	pending [][]Value
	count   int
	closed  bool
}

const spillFlushRows = 256

// NewSpill opens (creating if needed) a spill segment at path. An empty
// path means a private temp file removed on Discard.
func NewSpill(ctx context.Context, path string) (*Spill, error) {
	ownPath := false
	if path == "" {
		f, err := os.CreateTemp("", "tabmerge-spill-*.db")
		if err != nil {
			return nil, fmt.Errorf("spill temp: %w", err)
		}
		path = f.Name()
		ownPath = true
		_ = f.Close()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	const ddl = `CREATE TABLE IF NOT EXISTS rows (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	cells BLOB NOT NULL
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spill ddl: %w", err)
	}
	// Fresh segment per operation: a reused path must not leak prior rows.
	if _, err := db.ExecContext(ctx, `DELETE FROM rows`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spill reset: %w", err)
	}

	return &Spill{db: db, path: path, ownPath: ownPath}, nil
}

func (s *Spill) Len() int { return s.count }

func (s *Spill) Append(ctx context.Context, row []Value) error {
	cp := make([]Value, len(row))
	copy(cp, row)
	s.pending = append(s.pending, cp)
	s.count++
	if len(s.pending) >= spillFlushRows {
		return s.flush(ctx)
	}
	return nil
}

// flush writes pending rows in one multi-row INSERT.
func (s *Spill) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO rows (cells) VALUES ")
	args := make([]any, 0, len(s.pending))
	for i, row := range s.pending {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?)")
		raw, err := encodeCells(row)
		if err != nil {
			return err
		}
		args = append(args, raw)
	}
	s.pending = s.pending[:0]

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("spill insert: %w", err)
	}
	return nil
}

func (s *Spill) Scan(ctx context.Context, fn func(i int, row []Value) error) error {
	if err := s.flush(ctx); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cells FROM rows ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		row, err := decodeCells(raw)
		if err != nil {
			return err
		}
		if err := fn(i, row); err != nil {
			return err
		}
		i++
	}
	return rows.Err()
}

func (s *Spill) Prefix(ctx context.Context, n int) ([][]Value, error) {
	if err := s.flush(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cells FROM rows ORDER BY seq LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]Value
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		row, err := decodeCells(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Spill) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.flush(context.Background())
}

func (s *Spill) Discard() error {
	s.pending = nil
	s.count = 0
	s.closed = true
	err := s.db.Close()
	if s.ownPath {
		_ = os.Remove(s.path)
	}
	return err
}

// cellJSON is the on-disk cell encoding.
type cellJSON struct {
	K Kind    `json:"k"`
	S string  `json:"s,omitempty"`
	N float64 `json:"n,omitempty"`
}

func encodeCells(row []Value) ([]byte, error) {
	cells := make([]cellJSON, len(row))
	for i, v := range row {
		cells[i] = cellJSON{K: v.Kind, S: v.Str, N: v.Num}
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("spill encode: %w", err)
	}
	return raw, nil
}

func decodeCells(raw []byte) ([]Value, error) {
	var cells []cellJSON
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("spill decode: %w", err)
	}
	row := make([]Value, len(cells))
	for i, c := range cells {
		row[i] = Value{Kind: c.K, Str: c.S, Num: c.N}
	}
	return row, nil
}
