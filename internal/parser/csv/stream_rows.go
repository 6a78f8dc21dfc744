// Package csv streams delimited text into pooled dataset rows, one bounded
// chunk at a time.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
)

// DefaultChunkBytes is the ingestion chunk size when the config does not
// override it.
const DefaultChunkBytes = 1 << 20

// charsets maps the supported "charset" option values onto decoders.
// UTF-8 input needs no entry; it passes through untouched.
var charsets = map[string]encoding.Encoding{
	"windows-1250": charmap.Windows1250,
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
}

func wrapCharset(r io.Reader, name string) (io.Reader, error) {
	if name == "" || strings.EqualFold(name, "utf-8") {
		return r, nil
	}
	enc, ok := charsets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// countingReader tracks consumed input bytes so chunk boundaries can be
// detected at row granularity without buffering whole chunks.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// StreamRows streams delimited text from src into pooled *dataset.Row
// values aligned to the file's own header.
//
// Contract:
//   - onHeader is called exactly once, before any row, with the header
//     extracted from the first record. A stream with no decodable first
//     record is an error: no header, no ingestion.
//   - onChunk is called after roughly every chunk_bytes of consumed input
//     (and once at EOF for the remainder) with the number of rows since the
//     previous call. Context is polled at these boundaries and per row, so
//     cancellation takes effect between chunks.
//   - Cells are classified as Empty/Text/Number by dataset.Classify.
//   - Any read error after the header is fatal to the whole stream; there
//     is no per-line recovery. The returned row count covers successfully
//     emitted rows.
//
// NOTE on cancellation: in-flight rows must be Drop()ed, not Free()d, on
// ctx cancellation, otherwise the parser can reuse them while downstream
// drain-safe stages still read them.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	out chan<- *dataset.Row,
	onHeader func(header []string),
	onChunk func(rows int),
) (int, error) {
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	lazy := opt.Bool("lazy_quotes", false)
	chunkBytes := int64(opt.Int("chunk_bytes", DefaultChunkBytes))
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}

	decoded, err := wrapCharset(src, opt.String("charset", ""))
	if err != nil {
		return 0, err
	}
	counted := &countingReader{r: decoded}

	cr := csv.NewReader(counted)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1

	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = strings.TrimSpace(h)
	}
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

	for {
		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			flushChunk()
			return emitted, nil
		}
		if err != nil {
			return emitted, &rowError{line: line, err: err}
		}

		row := dataset.GetRow(len(header))
		row.Line = line

		for i := range header {
			if i >= len(rec) {
				row.V[i] = dataset.Empty
				continue
			}
			v := rec[i]
			if trim {
				v = strings.TrimSpace(v)
			}
			row.V[i] = dataset.Classify(v)
		}

		select {
		case out <- row:
		case <-ctx.Done():
			// IMPORTANT: do not re-pool on cancellation.
			row.Drop()
			return emitted, ctx.Err()
		}

		emitted++
		chunkRows++
		if counted.n >= nextBoundary {
			flushChunk()
			nextBoundary = counted.n + chunkBytes
		}
	}
}

// rowError reports an undecodable record. Line() lets callers recover the
// 1-based source line without parsing the message.
type rowError struct {
	line int
	err  error
}

func (e *rowError) Error() string { return fmt.Sprintf("line %d: %v", e.line, e.err) }
func (e *rowError) Unwrap() error { return e.err }
func (e *rowError) Line() int     { return e.line }
