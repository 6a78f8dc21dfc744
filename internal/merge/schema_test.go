package merge

import (
	"reflect"
	"testing"

	"tabmerge/internal/dataset"
)

func TestEstablishFixesFirstHeader(t *testing.T) {
	var r Reconciler

	first := r.Establish([]string{"a", "b"})
	if !reflect.DeepEqual(first, []string{"a", "b"}) {
		t.Fatalf("Establish = %v", first)
	}

	// Later calls are no-ops.
	again := r.Establish([]string{"x", "y", "z"})
	if !reflect.DeepEqual(again, []string{"a", "b"}) {
		t.Fatalf("second Establish altered schema: %v", again)
	}
	if !reflect.DeepEqual(r.Schema(), []string{"a", "b"}) {
		t.Fatalf("Schema = %v", r.Schema())
	}
}

func TestEstablishCopiesHeader(t *testing.T) {
	var r Reconciler
	h := []string{"a", "b"}
	r.Establish(h)
	h[0] = "mutated"
	if r.Schema()[0] != "a" {
		t.Fatalf("schema aliases caller header: %v", r.Schema())
	}
}

func TestPlanAndApply(t *testing.T) {
	tests := []struct {
		name        string
		canonical   []string
		header      []string
		src         []dataset.Value
		want        []dataset.Value
		wantDropped []string
		wantFilled  []string
	}{
		{
			name:      "identical header",
			canonical: []string{"a", "b"},
			header:    []string{"a", "b"},
			src:       []dataset.Value{dataset.Number(1), dataset.Number(2)},
			want:      []dataset.Value{dataset.Number(1), dataset.Number(2)},
		},
		{
			name:      "reordered header",
			canonical: []string{"a", "b"},
			header:    []string{"b", "a"},
			src:       []dataset.Value{dataset.Number(2), dataset.Number(1)},
			want:      []dataset.Value{dataset.Number(1), dataset.Number(2)},
		},
		{
			name:        "divergent header drops and fills",
			canonical:   []string{"a", "b"},
			header:      []string{"b", "c"},
			src:         []dataset.Value{dataset.Number(5), dataset.Number(9)},
			want:        []dataset.Value{dataset.Empty, dataset.Number(5)},
			wantDropped: []string{"c"},
			wantFilled:  []string{"a"},
		},
		{
			name:      "short source row",
			canonical: []string{"a", "b"},
			header:    []string{"a", "b"},
			src:       []dataset.Value{dataset.Text("x")},
			want:      []dataset.Value{dataset.Text("x"), dataset.Empty},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r Reconciler
			r.Establish(tc.canonical)
			plan := r.Plan(tc.header)

			if !reflect.DeepEqual(plan.Dropped, tc.wantDropped) {
				t.Fatalf("Dropped = %v, want %v", plan.Dropped, tc.wantDropped)
			}
			if !reflect.DeepEqual(plan.Filled, tc.wantFilled) {
				t.Fatalf("Filled = %v, want %v", plan.Filled, tc.wantFilled)
			}

			dst := make([]dataset.Value, len(tc.canonical))
			plan.Apply(tc.src, dst)
			if !reflect.DeepEqual(dst, tc.want) {
				t.Fatalf("Apply = %+v, want %+v", dst, tc.want)
			}
		})
	}
}

func TestProjectionDegraded(t *testing.T) {
	var r Reconciler
	r.Establish([]string{"a", "b"})

	if r.Plan([]string{"a", "b"}).Degraded() {
		t.Fatalf("matching header reported degraded")
	}
	if !r.Plan([]string{"a"}).Degraded() {
		t.Fatalf("missing column not reported degraded")
	}
	if !r.Plan([]string{"a", "b", "c"}).Degraded() {
		t.Fatalf("extra column not reported degraded")
	}
}
