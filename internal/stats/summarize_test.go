package stats

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"tabmerge/internal/dataset"
)

func fill(t *testing.T, rows [][]dataset.Value) *dataset.Memory {
	t.Helper()
	m := dataset.NewMemory()
	for _, r := range rows {
		if err := m.Append(context.Background(), r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return m
}

func TestSummarizeColumnProfiles(t *testing.T) {
	view := fill(t, [][]dataset.Value{
		{dataset.Number(1), dataset.Text("x"), dataset.Empty},
		{dataset.Number(3), dataset.Empty, dataset.Empty},
		{dataset.Text("n/a"), dataset.Text("y"), dataset.Empty},
	})

	sum, err := Summarize(context.Background(), view, []string{"amount", "label", "spare"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	want := []ColumnSummary{
		{Name: "amount", NonEmpty: 3, NumericCount: 2, NumericAvg: 2, Nulls: 0},
		{Name: "label", NonEmpty: 2, NumericCount: 0, NumericAvg: 0, Nulls: 1},
		{Name: "spare", NonEmpty: 0, NumericCount: 0, NumericAvg: 0, Nulls: 3},
	}
	if !reflect.DeepEqual(sum.Columns, want) {
		t.Fatalf("Columns = %+v, want %+v", sum.Columns, want)
	}
}

func TestSummarizeCapsColumns(t *testing.T) {
	schema := make([]string, MaxColumns+5)
	row := make([]dataset.Value, len(schema))
	for i := range schema {
		schema[i] = fmt.Sprintf("c%d", i)
		row[i] = dataset.Number(float64(i))
	}
	view := fill(t, [][]dataset.Value{row})

	sum, err := Summarize(context.Background(), view, schema)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(sum.Columns) != MaxColumns {
		t.Fatalf("profiled %d columns, want %d", len(sum.Columns), MaxColumns)
	}
	if sum.Columns[MaxColumns-1].Name != fmt.Sprintf("c%d", MaxColumns-1) {
		t.Fatalf("last profiled column = %q", sum.Columns[MaxColumns-1].Name)
	}
}

func TestSummarizeSampleBound(t *testing.T) {
	rows := make([][]dataset.Value, SampleRows+200)
	for i := range rows {
		rows[i] = []dataset.Value{dataset.Number(1)}
	}
	view := fill(t, rows)

	sum, err := Summarize(context.Background(), view, []string{"v"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got := sum.Columns[0].NonEmpty; got != SampleRows {
		t.Fatalf("NonEmpty = %d, want capped at %d", got, SampleRows)
	}
	// The growth curve still covers the full dataset.
	last := sum.Growth[len(sum.Growth)-1]
	if last.Index != len(rows) || last.Cumulative != len(rows) {
		t.Fatalf("last growth point = %+v, want index=cumulative=%d", last, len(rows))
	}
}

func TestSummarizeShortRows(t *testing.T) {
	view := fill(t, [][]dataset.Value{
		{dataset.Number(1), dataset.Text("x")},
		{dataset.Number(2)},
	})

	sum, err := Summarize(context.Background(), view, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	// A missing trailing cell counts as null.
	if sum.Columns[1].NonEmpty != 1 || sum.Columns[1].Nulls != 1 {
		t.Fatalf("column b = %+v", sum.Columns[1])
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	view := fill(t, [][]dataset.Value{
		{dataset.Number(10), dataset.Text("a")},
		{dataset.Empty, dataset.Number(-2)},
	})
	schema := []string{"x", "y"}

	first, err := Summarize(context.Background(), view, schema)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	second, err := Summarize(context.Background(), view, schema)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("summaries differ:\n%+v\n%+v", first, second)
	}
}

func TestGrowthCurve(t *testing.T) {
	tests := []struct {
		name  string
		total int
		want  []GrowthPoint
	}{
		{
			name:  "empty",
			total: 0,
			want:  []GrowthPoint{{Index: 0, Cumulative: 0}},
		},
		{
			name:  "single row",
			total: 1,
			want:  []GrowthPoint{{Index: 0, Cumulative: 0}, {Index: 1, Cumulative: 1}},
		},
		{
			name:  "fewer rows than buckets",
			total: 5,
			want: []GrowthPoint{
				{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := growthCurve(tc.total); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("growthCurve(%d) = %v, want %v", tc.total, got, tc.want)
			}
		})
	}
}

func TestGrowthCurveLargeDataset(t *testing.T) {
	got := growthCurve(100000)
	if len(got) != GrowthBuckets+1 {
		t.Fatalf("points = %d, want %d", len(got), GrowthBuckets+1)
	}
	if got[0] != (GrowthPoint{0, 0}) {
		t.Fatalf("first point = %+v", got[0])
	}
	if got[len(got)-1] != (GrowthPoint{100000, 100000}) {
		t.Fatalf("last point = %+v", got[len(got)-1])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Index <= got[i-1].Index {
			t.Fatalf("indices not strictly increasing at %d: %v", i, got)
		}
		if got[i].Cumulative != got[i].Index {
			t.Fatalf("cumulative diverges from index at %d: %+v", i, got[i])
		}
	}
}
