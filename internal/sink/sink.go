// Package sink publishes a merged dataset into a database table behind a
// backend-agnostic interface.
package sink

import (
	"context"
	"fmt"
	"sync"

	"tabmerge/internal/dataset"
)

// Config selects and configures a sink backend.
//
// Kind must match a registered backend ("postgres", "mssql", "sqlite").
// DSN validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Column describes one target-table column. Numeric selects a floating
// point column type; everything else is text.
type Column struct {
	Name    string
	Numeric bool
}

// Publisher is the backend contract. Each backend implements these
// semantics its own idiomatic way (Postgres ON CONFLICT, SQLite OR IGNORE,
// SQL Server NOT EXISTS).
type Publisher interface {
	// EnsureTable creates the target table if needed. When dedupeColumns
	// is non-empty the backend must also ensure whatever uniqueness its
	// idempotent-insert path relies on.
	EnsureTable(ctx context.Context, table string, columns []Column, dedupeColumns []string) error

	// InsertRows appends rows. With dedupeColumns the insert must be
	// idempotent across reprocessing the same dataset.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// Close releases backend resources. Call once.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Publisher, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call from an init() function
// in a backend package. Registering the same kind twice panics: fail fast
// rather than allow ambiguous backend selection.
func Register(kind string, f factory) {
	if kind == "" {
		panic("sink: Register with empty kind")
	}
	if f == nil {
		panic("sink: Register with nil factory")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("sink: Register called twice for kind %q", kind))
	}
	factories[kind] = f
}

// New constructs a Publisher for cfg.Kind.
func New(ctx context.Context, cfg Config) (Publisher, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sink: unsupported kind %q", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Options tune a Publish call.
type Options struct {
	Table         string
	DedupeColumns []string

	// BatchSize rows per insert statement. Zero means 512.
	BatchSize int
}

// Publish writes a merged dataset view into the target table: infers
// column types from a bounded prefix, ensures the table, then streams
// batched inserts. Returns the number of rows the backend reports
// inserted (lower than view.Len() when dedupe skips duplicates).
func Publish(ctx context.Context, pub Publisher, opt Options, view dataset.View, schema []string) (int64, error) {
	if opt.Table == "" {
		return 0, fmt.Errorf("sink: table name is required")
	}
	batch := opt.BatchSize
	if batch <= 0 {
		batch = 512
	}

	// Backends dedupe by matching parameter positions against the column
	// list; a dedupe column outside the schema would silently match the
	// wrong column.
	for _, dc := range opt.DedupeColumns {
		if !containsString(schema, dc) {
			return 0, fmt.Errorf("sink: dedupe column %q not in schema", dc)
		}
	}

	cols, err := inferColumns(ctx, view, schema)
	if err != nil {
		return 0, err
	}
	if err := pub.EnsureTable(ctx, opt.Table, cols, opt.DedupeColumns); err != nil {
		return 0, err
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var total int64
	pending := make([][]any, 0, batch)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := pub.InsertRows(ctx, opt.Table, names, pending, opt.DedupeColumns)
		if err != nil {
			return err
		}
		total += n
		pending = pending[:0]
		return nil
	}

	err = view.Scan(ctx, func(_ int, row []dataset.Value) error {
		out := make([]any, len(schema))
		for c := range schema {
			if c >= len(row) {
				out[c] = nil
				continue
			}
			out[c] = bindValue(row[c], cols[c].Numeric)
		}
		pending = append(pending, out)
		if len(pending) >= batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// inferColumns samples a prefix of the dataset and marks a column numeric
// when every sampled non-empty value is numeric.
func inferColumns(ctx context.Context, view dataset.View, schema []string) ([]Column, error) {
	const inferSample = 200

	sample, err := view.Prefix(ctx, inferSample)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, len(schema))
	for c, name := range schema {
		numeric := false
		seen := 0
		allNumeric := true
		for _, row := range sample {
			if c >= len(row) || row[c].IsEmpty() {
				continue
			}
			seen++
			if row[c].Kind != dataset.KindNumber {
				allNumeric = false
				break
			}
		}
		if seen > 0 && allNumeric {
			numeric = true
		}
		cols[c] = Column{Name: name, Numeric: numeric}
	}
	return cols, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// bindValue converts a tagged cell into a driver bind value matching the
// target column type. A text value landing in a numeric column (possible
// when it appeared past the inference sample) binds as NULL rather than
// failing the whole batch.
func bindValue(v dataset.Value, numeric bool) any {
	if v.IsEmpty() {
		return nil
	}
	if numeric {
		if v.Kind != dataset.KindNumber {
			return nil
		}
		return v.Num
	}
	return v.Render()
}
