package datadog

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tabmerge/internal/metrics"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) submitted() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.payloads...)
}

// newTestBackend builds a backend with a fake submitter, a fixed clock and
// a ticker that never fires, so only explicit Flush/Close submit.
func newTestBackend(t *testing.T, opts Options) (*Backend, *fakeSubmitter) {
	t.Helper()

	fake := &fakeSubmitter{}
	opts.submitter = fake
	opts.now = func() time.Time { return time.Unix(1700000000, 0) }
	opts.newTicker = func(time.Duration) *time.Ticker {
		return &time.Ticker{C: make(chan time.Time)}
	}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, fake
}

func seriesByMetric(p datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := make(map[string]datadogV2.MetricSeries, len(p.Series))
	for _, s := range p.Series {
		out[s.Metric] = s
	}
	return out
}

func TestFlushSubmitsBufferedCounters(t *testing.T) {
	b, fake := newTestBackend(t, Options{JobName: "merge-test"})

	b.IncCounter(metrics.MergeFilesTotal, 2, nil)
	b.IncCounter(metrics.MergeRowsTotal, 1500, nil)
	b.IncCounter(metrics.MergeParseErrors, 1, metrics.Labels{"file": "bad.csv"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payloads := fake.submitted()
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(payloads))
	}
	got := seriesByMetric(payloads[0])

	files, ok := got["tabmerge.files.total"]
	if !ok {
		t.Fatalf("files series missing: %v", payloads[0].Series)
	}
	if *files.Points[0].Value != 2 {
		t.Fatalf("files value = %v", *files.Points[0].Value)
	}
	if *files.Points[0].Timestamp != 1700000000 {
		t.Fatalf("timestamp = %v", *files.Points[0].Timestamp)
	}

	if *got["tabmerge.rows.total"].Points[0].Value != 1500 {
		t.Fatalf("rows series = %+v", got["tabmerge.rows.total"])
	}

	perr := got["tabmerge.parse_errors.total"]
	if !hasTag(perr.Tags, "file:bad.csv") {
		t.Fatalf("parse error tags = %v", perr.Tags)
	}

	// Flushing again with nothing buffered submits nothing.
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fake.submitted()) != 1 {
		t.Fatal("empty flush must not submit")
	}
}

func TestFlushResetsBuffers(t *testing.T) {
	b, fake := newTestBackend(t, Options{})

	b.IncCounter(metrics.MergeFilesTotal, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	b.IncCounter(metrics.MergeFilesTotal, 3, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payloads := fake.submitted()
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}
	second := seriesByMetric(payloads[1])
	if *second["tabmerge.files.total"].Points[0].Value != 3 {
		t.Fatalf("second flush value = %v, want 3 (not 4)", *second["tabmerge.files.total"].Points[0].Value)
	}
}

func TestDurationPercentiles(t *testing.T) {
	b, fake := newTestBackend(t, Options{})

	for _, v := range []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10} {
		b.ObserveHistogram(metrics.MergeDurationSeconds, v, metrics.Labels{"status": "ok"})
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := seriesByMetric(fake.submitted()[0])
	checks := map[string]float64{
		"tabmerge.merge.duration_seconds.p50":     5,
		"tabmerge.merge.duration_seconds.p90":     9,
		"tabmerge.merge.duration_seconds.p95":     10,
		"tabmerge.merge.duration_seconds.p99":     10,
		"tabmerge.merge.duration_seconds.max":     10,
		"tabmerge.merge.duration_seconds.samples": 10,
	}
	for metric, want := range checks {
		s, ok := got[metric]
		if !ok {
			t.Fatalf("series %s missing", metric)
		}
		if *s.Points[0].Value != want {
			t.Fatalf("%s = %v, want %v", metric, *s.Points[0].Value, want)
		}
		if !hasTag(s.Tags, "status:ok") {
			t.Fatalf("%s tags = %v", metric, s.Tags)
		}
	}
}

func TestBaseTags(t *testing.T) {
	b, fake := newTestBackend(t, Options{JobName: "nightly", Tags: []string{"team:data"}})

	b.IncCounter(metrics.MergeFilesTotal, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	s := seriesByMetric(fake.submitted()[0])["tabmerge.files.total"]
	for _, want := range []string{"job:nightly", "team:data"} {
		if !hasTag(s.Tags, want) {
			t.Fatalf("tags = %v, want %s", s.Tags, want)
		}
	}
}

func TestCloseFlushesOnce(t *testing.T) {
	b, fake := newTestBackend(t, Options{})

	b.IncCounter(metrics.MergeRowsTotal, 42, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fake.submitted()) != 1 {
		t.Fatalf("payloads = %d, want final flush", len(fake.submitted()))
	}
}

func TestIgnoresUnknownAndNonPositive(t *testing.T) {
	b, fake := newTestBackend(t, Options{})

	b.IncCounter("someone_elses_metric", 5, nil)
	b.IncCounter(metrics.MergeFilesTotal, 0, nil)
	b.IncCounter(metrics.MergeFilesTotal, -2, nil)
	b.ObserveHistogram(metrics.MergeDurationSeconds, -1, metrics.Labels{"status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fake.submitted()) != 0 {
		t.Fatalf("nothing should have been buffered, got %d payloads", len(fake.submitted()))
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	tests := []struct {
		p    float64
		want float64
	}{
		{0.50, 20},
		{0.90, 40},
		{0.25, 10},
		{1.00, 40},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(sorted, tc.p); got != tc.want {
			t.Fatalf("percentileNearestRank(p=%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty samples = %v, want 0", got)
	}
}

func hasTag(tags []string, want string) bool {
	for _, tg := range tags {
		if tg == want {
			return true
		}
	}
	return false
}
