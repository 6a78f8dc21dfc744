package dataset

import "context"

// Memory is the default in-memory Store: a flat slice of rows.
type Memory struct {
	rows [][]Value
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Len() int { return len(m.rows) }

func (m *Memory) Append(_ context.Context, row []Value) error {
	cp := make([]Value, len(row))
	copy(cp, row)
	m.rows = append(m.rows, cp)
	return nil
}

func (m *Memory) Scan(ctx context.Context, fn func(i int, row []Value) error) error {
	for i, r := range m.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Prefix(_ context.Context, n int) ([][]Value, error) {
	if n > len(m.rows) {
		n = len(m.rows)
	}
	out := make([][]Value, n)
	for i := 0; i < n; i++ {
		cp := make([]Value, len(m.rows[i]))
		copy(cp, m.rows[i])
		out[i] = cp
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Discard() error {
	m.rows = nil
	return nil
}
