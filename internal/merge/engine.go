// Package merge implements the streaming merge-and-aggregate engine:
// sequential chunked ingestion of tabular inputs, schema reconciliation
// onto the first file's header, accumulation into an append-only dataset
// store, and derivation of merge statistics and a sampled visualization
// summary.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
	"tabmerge/internal/metrics"
	csvparser "tabmerge/internal/parser/csv"
	"tabmerge/internal/parser/htmltable"
	"tabmerge/internal/parser/ndjson"
	"tabmerge/internal/stats"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// State is the lifecycle of one merge operation.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StateAggregating
	StateSummarizing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateAggregating:
		return "aggregating"
	case StateSummarizing:
		return "summarizing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Input is one named byte-producing handle supplied by the caller.
type Input struct {
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// FileInput builds an Input from a filesystem path, discovering the size.
func FileInput(path string) (Input, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Input{}, err
	}
	return Input{
		Name: filepath.Base(path),
		Size: fi.Size(),
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FileStat is the per-file ingestion record. DroppedColumns and
// FilledColumns record schema divergence from the canonical schema; both
// empty means the file matched exactly.
type FileStat struct {
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
	Rows   int     `json:"rows"`

	DroppedColumns []string `json:"dropped_columns,omitempty"`
	FilledColumns  []string `json:"filled_columns,omitempty"`
}

// Stats aggregates a completed merge.
type Stats struct {
	Files      int        `json:"files"`
	Rows       int        `json:"rows"`
	Columns    int        `json:"columns"`
	TotalBytes int64      `json:"total_bytes"`
	FileStats  []FileStat `json:"file_stats"`
}

// Result is the payload handed to presentation collaborators once an
// operation reaches Ready. Dataset ownership transfers to the caller as a
// read-only view.
type Result struct {
	Schema  []string
	Dataset dataset.View
	Stats   Stats
	Summary stats.VisualizationSummary
}

// StreamFn is the parser adapter contract. It is also the engine's test
// seam: inject a deterministic stream without file I/O or real parsers.
type StreamFn func(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	out chan<- *dataset.Row,
	onHeader func(header []string),
	onChunk func(rows int),
) (int, error)

// StoreFactory creates the backing store for one operation's dataset.
type StoreFactory func(ctx context.Context) (dataset.Store, error)

// Engine runs merge operations. It is single-writer: a Run call while a
// prior operation is still in flight returns ErrBusy.
type Engine struct {
	Logger  Logger
	Metrics metrics.Backend

	// NewStore selects the dataset backing store. Nil means in-memory.
	NewStore StoreFactory

	// Adapter overrides extension-based adapter lookup (test seam).
	Adapter func(in Input) (StreamFn, error)

	// ChannelBuffer sizes the parser-to-accumulator row channel.
	// Zero means 256.
	ChannelBuffer int

	busy    atomic.Bool
	current atomic.Pointer[Operation]
}

// State returns the state of the current (or most recent) operation, or
// StateIdle when no operation has run.
func (e *Engine) State() State {
	if op := e.current.Load(); op != nil {
		return op.State()
	}
	return StateIdle
}

// Progress returns the progress of the current (or most recent) operation
// as a percentage in [0, 100].
func (e *Engine) Progress() float64 {
	if op := e.current.Load(); op != nil {
		return op.Progress()
	}
	return 0
}

// Run executes one merge operation over inputs, in order.
//
// Inputs are re-validated before any ingestion: an unrecognized extension
// returns an InputRejectedError with no state change. An empty input list
// completes immediately in Ready with an empty dataset and zero stats.
func (e *Engine) Run(ctx context.Context, inputs []Input, opt config.Options) (*Result, error) {
	adapter := e.Adapter
	if adapter == nil {
		adapter = adapterForInput
	}

	// Re-validate before touching any state.
	for _, in := range inputs {
		if _, err := adapter(in); err != nil {
			return nil, err
		}
	}

	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	op := &Operation{
		logf:    e.logger(),
		metrics: e.metricsBackend(),
		adapter: adapter,
		newStore: func(ctx context.Context) (dataset.Store, error) {
			if e.NewStore != nil {
				return e.NewStore(ctx)
			}
			return dataset.NewMemory(), nil
		},
		chanBuf: e.ChannelBuffer,
		opt:     opt,
		inputs:  inputs,
	}
	e.current.Store(op)
	return op.run(ctx)
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(io.Discard, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

func (e *Engine) metricsBackend() metrics.Backend {
	if e.Metrics == nil {
		return metrics.Nop{}
	}
	return e.Metrics
}

// recognizedExtensions documents the tabular input formats the engine
// accepts. Dispatch happens in adapterForInput.
var recognizedExtensions = []string{".csv", ".tsv", ".txt", ".ndjson", ".jsonl", ".html", ".htm"}

// adapterForInput picks a parser adapter by file extension.
func adapterForInput(in Input) (StreamFn, error) {
	switch strings.ToLower(filepath.Ext(in.Name)) {
	case ".csv", ".txt":
		return csvparser.StreamRows, nil
	case ".tsv":
		return streamTSV, nil
	case ".ndjson", ".jsonl":
		return ndjson.StreamRows, nil
	case ".html", ".htm":
		return htmltable.StreamRows, nil
	default:
		return nil, &InputRejectedError{
			Name:   in.Name,
			Reason: fmt.Sprintf("extension not one of %s", strings.Join(recognizedExtensions, " ")),
		}
	}
}

// streamTSV is the csv adapter with a tab delimiter unless the config
// already picked one.
func streamTSV(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	out chan<- *dataset.Row,
	onHeader func([]string),
	onChunk func(int),
) (int, error) {
	if opt.String("comma", "") == "" {
		clone := config.Options{}
		for k, v := range opt {
			clone[k] = v
		}
		clone["comma"] = "\t"
		opt = clone
	}
	return csvparser.StreamRows(ctx, src, opt, out, onHeader, onChunk)
}

// Operation is one merge in flight: the explicit state machine
// Idle -> Ingesting -> Aggregating -> Summarizing -> Ready | Failed.
// State and Progress are safe to read from any goroutine while run()
// executes.
type Operation struct {
	logf     func(format string, v ...any)
	metrics  metrics.Backend
	adapter  func(in Input) (StreamFn, error)
	newStore StoreFactory
	chanBuf  int

	opt    config.Options
	inputs []Input

	state atomic.Int32
	prog  progress
}

func (op *Operation) State() State      { return State(op.state.Load()) }
func (op *Operation) Progress() float64 { return op.prog.value() }

func (op *Operation) setState(s State) { op.state.Store(int32(s)) }

func (op *Operation) run(ctx context.Context) (*Result, error) {
	start := time.Now()

	store, err := op.newStore(ctx)
	if err != nil {
		op.setState(StateFailed)
		return nil, fmt.Errorf("dataset store: %w", err)
	}

	fail := func(err error) (*Result, error) {
		_ = store.Discard()
		op.setState(StateFailed)
		return nil, err
	}

	var rec Reconciler
	fileStats := make([]FileStat, 0, len(op.inputs))
	var totalBytes int64

	n := len(op.inputs)
	for i, in := range op.inputs {
		op.setState(StateIngesting)

		fileStart := time.Now()
		fs, err := op.ingestFile(ctx, i, n, in, &rec, store)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				op.metrics.IncCounter(metrics.MergeParseErrors, 1, metrics.Labels{"file": pe.File})
			}
			return fail(err)
		}
		op.logf("stage=ingest file=%s rows=%d size_mb=%.2f duration=%s",
			fs.Name, fs.Rows, fs.SizeMB, time.Since(fileStart).Truncate(time.Millisecond))

		fileStats = append(fileStats, fs)
		totalBytes += in.Size
		op.metrics.IncCounter(metrics.MergeFilesTotal, 1, nil)

		// File complete: snap to its full share of the ingestion range.
		op.prog.raiseTo(90 * float64(i+1) / float64(n))
	}

	op.setState(StateAggregating)
	merged := finalize(fileStats, rec.Schema(), totalBytes)
	op.prog.raiseTo(95)

	op.setState(StateSummarizing)
	if err := store.Close(); err != nil {
		return fail(fmt.Errorf("close store: %w", err))
	}
	summary, err := stats.Summarize(ctx, store, rec.Schema())
	if err != nil {
		return fail(err)
	}

	op.setState(StateReady)
	op.prog.raiseTo(100)

	op.metrics.ObserveHistogram(metrics.MergeDurationSeconds, time.Since(start).Seconds(), metrics.Labels{"status": "ok"})
	op.logf("stage=merge ok files=%d rows=%d columns=%d duration=%s",
		merged.Files, merged.Rows, merged.Columns, time.Since(start).Truncate(time.Millisecond))

	schema := rec.Schema()
	if schema == nil {
		schema = []string{}
	}
	return &Result{
		Schema:  schema,
		Dataset: store,
		Stats:   merged,
		Summary: summary,
	}, nil
}

// ingestFile streams one input through its parser adapter, projects every
// row onto the canonical schema and appends it to the store.
func (op *Operation) ingestFile(
	ctx context.Context,
	i, n int,
	in Input,
	rec *Reconciler,
	store dataset.Store,
) (FileStat, error) {
	streamFn, err := op.adapter(in)
	if err != nil {
		return FileStat{}, err
	}

	src, err := in.Open(ctx)
	if err != nil {
		return FileStat{}, &ParseError{File: in.Name, Err: err}
	}
	defer src.Close()

	// This file owns an equal slice of the ingestion range; chunk progress
	// may fill at most 90% of the slice, the rest lands when the file (and
	// later the aggregation stages) complete.
	base := 90 * float64(i) / float64(n)
	slice := 90 / float64(n)

	chunkBytes := op.opt.Int("chunk_bytes", csvparser.DefaultChunkBytes)
	if chunkBytes <= 0 {
		chunkBytes = csvparser.DefaultChunkBytes
	}
	expectedChunks := int(in.Size/int64(chunkBytes)) + 1
	chunksSeen := 0

	onChunk := func(rows int) {
		chunksSeen++
		frac := float64(chunksSeen) / float64(expectedChunks)
		if frac > 1 {
			frac = 1
		}
		op.prog.raiseTo(base + 0.9*slice*frac)
		op.metrics.IncCounter(metrics.MergeRowsTotal, float64(rows), nil)
	}

	buf := op.chanBuf
	if buf <= 0 {
		buf = 256
	}
	rowCh := make(chan *dataset.Row, buf)
	headerCh := make(chan []string, 1)

	var streamErr error
	go func() {
		defer close(rowCh)
		_, streamErr = streamFn(ctx, src, op.opt, rowCh, func(h []string) {
			headerCh <- h
		}, onChunk)
	}()

	var plan Projection
	havePlan := false
	var dst []dataset.Value
	appended := 0
	var appendErr error

	for r := range rowCh {
		if appendErr != nil {
			r.Drop()
			continue
		}
		if !havePlan {
			// The adapter delivers the header before the first row.
			h := <-headerCh
			schema := rec.Establish(h)
			plan = rec.Plan(h)
			dst = make([]dataset.Value, len(schema))
			havePlan = true
		}
		plan.Apply(r.V, dst)
		if err := store.Append(ctx, dst); err != nil {
			appendErr = err
			r.Drop()
			continue
		}
		appended++
		r.Free()
	}

	if appendErr != nil {
		return FileStat{}, appendErr
	}
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) {
			return FileStat{}, streamErr
		}
		pe := &ParseError{File: in.Name, Err: streamErr}
		var le interface{ Line() int }
		if errors.As(streamErr, &le) {
			pe.Line = le.Line()
		}
		return FileStat{}, pe
	}
	if !havePlan {
		// Zero data rows: the header may still have been delivered.
		select {
		case h := <-headerCh:
			rec.Establish(h)
			plan = rec.Plan(h)
		default:
			return FileStat{}, &ParseError{File: in.Name, Err: errors.New("no header extracted")}
		}
	}

	if plan.Degraded() {
		op.logf("stage=schema file=%s dropped=%d filled=%d", in.Name, len(plan.Dropped), len(plan.Filled))
	}

	return FileStat{
		Name:           in.Name,
		SizeMB:         roundMB(in.Size),
		Rows:           appended,
		DroppedColumns: plan.Dropped,
		FilledColumns:  plan.Filled,
	}, nil
}

// finalize totals per-file stats into the aggregate record.
func finalize(files []FileStat, schema []string, totalBytes int64) Stats {
	rows := 0
	for _, f := range files {
		rows += f.Rows
	}
	return Stats{
		Files:      len(files),
		Rows:       rows,
		Columns:    len(schema),
		TotalBytes: totalBytes,
		FileStats:  files,
	}
}

func roundMB(size int64) float64 {
	return math.Round(float64(size)/(1<<20)*100) / 100
}
