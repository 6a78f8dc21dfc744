// Package ndjson streams newline-delimited JSON objects into pooled
// dataset rows using the same contract as the csv adapter.
package ndjson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
)

// StreamRows streams one JSON object per line from src.
//
// The header is the sorted key set of the first object; later objects are
// read against that header (missing keys become Empty, extra keys are
// ignored here and dropped by projection anyway). Contract otherwise
// matches csv.StreamRows: onHeader exactly once before any row, onChunk at
// chunk boundaries, fatal error on any undecodable line.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	out chan<- *dataset.Row,
	onHeader func(header []string),
	onChunk func(rows int),
) (int, error) {
	chunkBytes := int64(opt.Int("chunk_bytes", 1<<20))
	if chunkBytes <= 0 {
		chunkBytes = 1 << 20
	}

	counted := &countingReader{r: src}
	dec := json.NewDecoder(counted)
	dec.UseNumber()

	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}

	header := make([]string, 0, len(first))
	for k := range first {
		header = append(header, k)
	}
	sort.Strings(header)
	if onHeader != nil {
		onHeader(header)
	}

	emitted := 0
	chunkRows := 0
	nextBoundary := counted.n + chunkBytes

	flushChunk := func() {
		if onChunk != nil && chunkRows > 0 {
			onChunk(chunkRows)
		}
		chunkRows = 0
	}

	emit := func(obj map[string]any) error {
		row := dataset.GetRow(len(header))
		row.Line = emitted + 2 // 1-based, header object is line 1
		for i, k := range header {
			row.V[i] = cellValue(obj[k])
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}

		emitted++
		chunkRows++
		if counted.n >= nextBoundary {
			flushChunk()
			nextBoundary = counted.n + chunkBytes
		}
		return nil
	}

	if err := emit(first); err != nil {
		return emitted, err
	}

	for {
		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		default:
		}

		var obj map[string]any
		err := dec.Decode(&obj)
		if err == io.EOF {
			flushChunk()
			return emitted, nil
		}
		if err != nil {
			return emitted, &recordError{line: emitted + 2, err: err}
		}
		if err := emit(obj); err != nil {
			return emitted, err
		}
	}
}

// cellValue maps a decoded JSON value onto a tagged cell.
func cellValue(v any) dataset.Value {
	switch t := v.(type) {
	case nil:
		return dataset.Empty
	case string:
		return dataset.Classify(t)
	case json.Number:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return dataset.Number(f)
		}
		return dataset.Text(t.String())
	case bool:
		if t {
			return dataset.Text("true")
		}
		return dataset.Text("false")
	default:
		// Nested arrays/objects flatten to their compact JSON form.
		raw, err := json.Marshal(t)
		if err != nil {
			return dataset.Empty
		}
		return dataset.Text(string(raw))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// recordError reports an undecodable object. Line() lets callers recover
// the 1-based source line without parsing the message.
type recordError struct {
	line int
	err  error
}

func (e *recordError) Error() string { return fmt.Sprintf("record %d: %v", e.line, e.err) }
func (e *recordError) Unwrap() error { return e.err }
func (e *recordError) Line() int     { return e.line }
