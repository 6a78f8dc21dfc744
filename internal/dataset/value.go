// Package dataset defines the cell value model and the append-only stores
// that back a merged dataset.
package dataset

import (
	"math"
	"strconv"
)

// Kind discriminates the cell value union.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
)

// Value is a tagged cell value: Empty, Text or Number.
//
// The numeric classification rule lives in Classify and nowhere else, so
// summarization and serialization can never disagree about what counts as
// a number.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

// Empty is the placeholder for missing cells.
var Empty = Value{Kind: KindEmpty}

// Text builds a text value.
func Text(s string) Value { return Value{Kind: KindText, Str: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Classify converts a raw cell into a tagged Value.
//
// A cell is numeric when it is non-empty and parses losslessly as a
// decimal number. Inf/NaN spellings stay text: they are not tabular data.
func Classify(raw string) Value {
	if raw == "" {
		return Empty
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return Text(raw)
	}
	return Number(f)
}

// Render returns the delimited-text form of v. Empty renders as "".
func (v Value) Render() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindText:
		return v.Str
	default:
		return ""
	}
}

// IsEmpty reports whether v is the empty placeholder.
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }
