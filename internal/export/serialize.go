// Package export re-serializes a merged dataset to delimited text.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"tabmerge/internal/dataset"
)

// Serialize writes the dataset as CSV: the canonical schema as the header
// row, then every row in append order. Quoting of delimiters, quotes and
// newlines is the standard encoding/csv behavior, so the output round-trips
// through the csv parser adapter (modulo numeric-vs-text classification of
// ambiguous cells such as leading-zero strings).
func Serialize(ctx context.Context, w io.Writer, view dataset.View, schema []string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(schema); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(schema))
	err := view.Scan(ctx, func(i int, row []dataset.Value) error {
		for c := range schema {
			if c < len(row) {
				record[c] = row[c].Render()
			} else {
				record[c] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// ArtifactName returns the deterministic export file name for a merge
// completed at t: "<prefix>_<UTC timestamp>.csv".
func ArtifactName(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = "merged"
	}
	return fmt.Sprintf("%s_%s.csv", prefix, t.UTC().Format("20060102T150405"))
}
