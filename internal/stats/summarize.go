// Package stats derives the bounded-cost visualization summary from a
// merged dataset: sampled per-column profiles and a growth curve.
package stats

import (
	"context"

	"tabmerge/internal/dataset"
)

const (
	// SampleRows bounds the prefix sample the column summaries are
	// computed over, so summary cost is independent of dataset size.
	SampleRows = 1000

	// MaxColumns bounds how many leading columns are profiled.
	MaxColumns = 10

	// GrowthBuckets is the number of equal-width buckets of the growth
	// curve; the curve has GrowthBuckets+1 boundary points.
	GrowthBuckets = 20
)

// ColumnSummary profiles one canonical column over the prefix sample.
type ColumnSummary struct {
	Name         string  `json:"name"`
	NonEmpty     int     `json:"non_empty"`
	NumericCount int     `json:"numeric_count"`
	NumericAvg   float64 `json:"numeric_avg"`
	Nulls        int     `json:"nulls"`
}

// GrowthPoint is one sampled point of the row accumulation curve.
type GrowthPoint struct {
	Index      int `json:"index"`
	Cumulative int `json:"cumulative"`
}

// VisualizationSummary is the bounded analytics payload for display.
type VisualizationSummary struct {
	Columns []ColumnSummary `json:"columns"`
	Growth  []GrowthPoint   `json:"growth"`
}

// Summarize computes the visualization summary for view keyed by schema.
//
// It is pure and deterministic: identical inputs always yield an identical
// summary, so calling it twice on the same dataset is idempotent.
//
// Column profiles cover only the first SampleRows rows and the first
// MaxColumns columns. The growth curve covers the entire dataset; since
// merged rows are contiguous and unfiltered, the cumulative count at a
// sampled index equals the index itself. The curve is kept for trend
// display, not as a distinct quantity.
func Summarize(ctx context.Context, view dataset.View, schema []string) (VisualizationSummary, error) {
	sample, err := view.Prefix(ctx, SampleRows)
	if err != nil {
		return VisualizationSummary{}, err
	}

	cols := len(schema)
	if cols > MaxColumns {
		cols = MaxColumns
	}

	summaries := make([]ColumnSummary, 0, cols)
	for c := 0; c < cols; c++ {
		s := ColumnSummary{Name: schema[c]}
		sum := 0.0
		for _, row := range sample {
			if c >= len(row) || row[c].IsEmpty() {
				continue
			}
			s.NonEmpty++
			if row[c].Kind == dataset.KindNumber {
				s.NumericCount++
				sum += row[c].Num
			}
		}
		// Average 0 when no numeric values: avoid division by zero rather
		// than reporting "undefined".
		if s.NumericCount > 0 {
			s.NumericAvg = sum / float64(s.NumericCount)
		}
		s.Nulls = len(sample) - s.NonEmpty
		summaries = append(summaries, s)
	}

	return VisualizationSummary{
		Columns: summaries,
		Growth:  growthCurve(view.Len()),
	}, nil
}

// growthCurve partitions [0, total] into GrowthBuckets equal-width buckets
// and records the cumulative row count at each boundary index.
func growthCurve(total int) []GrowthPoint {
	if total <= 0 {
		return []GrowthPoint{{Index: 0, Cumulative: 0}}
	}

	points := make([]GrowthPoint, 0, GrowthBuckets+1)
	prev := -1
	for b := 0; b <= GrowthBuckets; b++ {
		idx := total * b / GrowthBuckets
		if idx == prev {
			// Tiny datasets: fewer distinct boundaries than buckets.
			continue
		}
		prev = idx
		points = append(points, GrowthPoint{Index: idx, Cumulative: idx})
	}
	return points
}
