// Package htmltable extracts the first <table> of an HTML document into
// dataset rows, using the same adapter contract as the csv package.
package htmltable

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tabmerge/internal/config"
	"tabmerge/internal/dataset"
)

// StreamRows parses the document and emits one row per <tr> of its first
// <table>.
//
// The header comes from <th> cells when present, otherwise from the first
// row's <td> cells. HTML is a DOM format, so this adapter cannot honor a
// byte-level chunk size; it still reports onChunk once per emitted batch so
// progress accounting stays uniform across adapters.
func StreamRows(
	ctx context.Context,
	src io.Reader,
	opt config.Options,
	out chan<- *dataset.Row,
	onHeader func(header []string),
	onChunk func(rows int),
) (int, error) {
	_ = opt

	doc, err := goquery.NewDocumentFromReader(src)
	if err != nil {
		return 0, fmt.Errorf("read header: parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return 0, fmt.Errorf("read header: no table element")
	}

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return 0, fmt.Errorf("read header: empty table")
	}

	var header []string
	bodyStart := 0

	firstRow := rows.First()
	ths := firstRow.Find("th")
	if ths.Length() > 0 {
		ths.Each(func(_ int, s *goquery.Selection) {
			header = append(header, strings.TrimSpace(s.Text()))
		})
		bodyStart = 1
	} else {
		firstRow.Find("td").Each(func(_ int, s *goquery.Selection) {
			header = append(header, strings.TrimSpace(s.Text()))
		})
		bodyStart = 1
	}
	if len(header) == 0 {
		return 0, fmt.Errorf("read header: no header cells")
	}
	if onHeader != nil {
		onHeader(header)
	}

	emitted := 0
	var emitErr error

	rows.Slice(bodyStart, rows.Length()).EachWithBreak(func(i int, tr *goquery.Selection) bool {
		select {
		case <-ctx.Done():
			emitErr = ctx.Err()
			return false
		default:
		}

		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		if len(cells) == 0 {
			// Skip separator/decoration rows.
			return true
		}

		row := dataset.GetRow(len(header))
		row.Line = bodyStart + i + 1
		for c := range header {
			if c >= len(cells) {
				row.V[c] = dataset.Empty
				continue
			}
			row.V[c] = dataset.Classify(cells[c])
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			emitErr = ctx.Err()
			return false
		}

		emitted++
		return true
	})

	if emitErr != nil {
		return emitted, emitErr
	}
	if onChunk != nil && emitted > 0 {
		onChunk(emitted)
	}
	return emitted, nil
}
