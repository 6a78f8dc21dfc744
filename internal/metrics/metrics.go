// Package metrics defines the minimal metrics surface the merge engine
// emits to, keeping backend specifics (Datadog, etc.) out of the core.
package metrics

// Labels attaches low-cardinality dimensions to a metric sample.
type Labels map[string]string

// Backend receives engine metrics.
//
// Implementations are expected to buffer in-memory and submit on Flush;
// IncCounter and ObserveHistogram must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered metrics.
	Flush() error

	// Close stops any background flushing and performs one final Flush.
	Close() error
}

// Metric names emitted by the merge engine.
const (
	MergeFilesTotal      = "merge_files_total"
	MergeRowsTotal       = "merge_rows_total"
	MergeDurationSeconds = "merge_duration_seconds"
	MergeParseErrors     = "merge_parse_errors_total"
)

// Nop is the default Backend: it drops everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }
