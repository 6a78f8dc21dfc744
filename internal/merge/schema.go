package merge

import "tabmerge/internal/dataset"

// Reconciler fixes the canonical column set from the first header it sees
// and maps every later header onto it.
//
// Establishing from the first file (rather than a union or intersection
// across all files) is a deliberate simplicity trade-off: later files are
// silently coerced onto the canonical schema, which can drop or blank real
// data. That divergence is recorded per file (see Projection) so callers
// can surface it, but it is never an error.
type Reconciler struct {
	schema []string
}

// Establish fixes the canonical schema on first call and is a no-op
// afterwards. It always returns the canonical schema in effect.
func (r *Reconciler) Establish(header []string) []string {
	if r.schema == nil {
		r.schema = make([]string, len(header))
		copy(r.schema, header)
	}
	return r.schema
}

// Schema returns the canonical schema, or nil before Establish.
func (r *Reconciler) Schema() []string { return r.schema }

// Projection is a compiled header-to-canonical mapping for one file.
//
// src[i] is the source column index feeding canonical column i, or -1 when
// the file lacks that column. Compiling once per file keeps the per-row
// path free of map lookups.
type Projection struct {
	src []int

	// Dropped lists source columns absent from the canonical schema.
	// Filled lists canonical columns absent from the source header.
	Dropped []string
	Filled  []string
}

// Plan compiles the projection of header onto the canonical schema.
// Establish must have been called first.
func (r *Reconciler) Plan(header []string) Projection {
	srcIdx := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := srcIdx[h]; !ok {
			srcIdx[h] = i
		}
	}

	p := Projection{src: make([]int, len(r.schema))}
	canonical := make(map[string]struct{}, len(r.schema))
	for i, c := range r.schema {
		canonical[c] = struct{}{}
		if si, ok := srcIdx[c]; ok {
			p.src[i] = si
		} else {
			p.src[i] = -1
			p.Filled = append(p.Filled, c)
		}
	}
	for _, h := range header {
		if _, ok := canonical[h]; !ok {
			p.Dropped = append(p.Dropped, h)
		}
	}
	return p
}

// Degraded reports whether this file's header diverged from the canonical
// schema in either direction.
func (p Projection) Degraded() bool {
	return len(p.Dropped) > 0 || len(p.Filled) > 0
}

// Apply projects a source-aligned row into dst, which must have canonical
// length. Missing columns become Empty; extra source columns are ignored.
// Apply is total: any src length is accepted.
func (p Projection) Apply(src []dataset.Value, dst []dataset.Value) {
	for i, si := range p.src {
		if si < 0 || si >= len(src) {
			dst[i] = dataset.Empty
			continue
		}
		dst[i] = src[si]
	}
}
