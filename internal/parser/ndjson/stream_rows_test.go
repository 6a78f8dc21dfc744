package ndjson

import (
	"context"
	"strings"
	"testing"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
)

func collect(t *testing.T, input string) (header []string, rows [][]dataset.Value, err error) {
	t.Helper()

	out := make(chan *dataset.Row, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range out {
			cp := make([]dataset.Value, len(r.V))
			copy(cp, r.V)
			rows = append(rows, cp)
			r.Free()
		}
	}()

	_, err = StreamRows(context.Background(), strings.NewReader(input), config.Options{},
		out, func(h []string) { header = h }, nil)
	close(out)
	<-done
	return header, rows, err
}

func TestStreamRowsObjects(t *testing.T) {
	input := `{"b":2,"a":"x"}
{"a":"y","b":3,"extra":true}
{"b":null}
`

	header, rows, err := collect(t, input)
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}

	// Header is the sorted key set of the first object.
	if len(header) != 2 || header[0] != "a" || header[1] != "b" {
		t.Fatalf("header = %v, want [a b]", header)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	if rows[0][0] != dataset.Text("x") || rows[0][1] != dataset.Number(2) {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	// Extra key ignored.
	if rows[1][0] != dataset.Text("y") || rows[1][1] != dataset.Number(3) {
		t.Fatalf("row 1 = %+v", rows[1])
	}
	// Missing and null keys are Empty.
	if !rows[2][0].IsEmpty() || !rows[2][1].IsEmpty() {
		t.Fatalf("row 2 = %+v, want empties", rows[2])
	}
}

func TestStreamRowsValueMapping(t *testing.T) {
	input := `{"s":"5","b":true,"n":[1,2]}
`
	header, rows, err := collect(t, input)
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	byName := map[string]dataset.Value{}
	for i, h := range header {
		byName[h] = rows[0][i]
	}

	// Numeric-looking strings classify like CSV cells do.
	if byName["s"] != dataset.Number(5) {
		t.Fatalf("s = %+v, want Number(5)", byName["s"])
	}
	if byName["b"] != dataset.Text("true") {
		t.Fatalf("b = %+v", byName["b"])
	}
	if byName["n"] != dataset.Text("[1,2]") {
		t.Fatalf("n = %+v", byName["n"])
	}
}

func TestStreamRowsEmptyStream(t *testing.T) {
	_, _, err := collect(t, "")
	if err == nil || !strings.Contains(err.Error(), "read header") {
		t.Fatalf("err = %v, want header error", err)
	}
}

func TestStreamRowsMalformedLine(t *testing.T) {
	_, rows, err := collect(t, `{"a":1}
not json
`)
	if err == nil {
		t.Fatalf("want error for malformed record, got %d rows", len(rows))
	}
	if len(rows) != 1 {
		t.Fatalf("rows before failure = %d, want 1", len(rows))
	}
}
