package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minTableCells is the number of text runs on a line for it to be treated as
// a table row. Statement transaction lines carry at least a date, a
// description and an amount.
const minTableCells = 3

// ErrNoText is returned when a PDF yields no extractable text, as with
// scanned statements.
var ErrNoText = errors.New("localpdf: no extractable text")

// LocalPDF extracts text rows from a PDF without any remote service. Lines
// with several separate text runs become pipe-table rows; consecutive ones
// form a table whose first line is the header.
type LocalPDF struct{}

// NewLocalPDF returns a LocalPDF converter.
func NewLocalPDF() *LocalPDF {
	return &LocalPDF{}
}

func (LocalPDF) Convert(ctx context.Context, doc Document) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("LocalPDF.Convert: pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("LocalPDF.Convert: open %s: %w", doc.Name, err)
	}

	numPages := r.NumPage()
	hasText := false
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("LocalPDF.Convert: page %d: %w", i, err)
		}

		lines := make([][]string, 0, len(rows))
		for _, row := range rows {
			var cells []string
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					cells = append(cells, s)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, cells)
			}
		}
		if len(lines) > 0 {
			hasText = true
		}
		pages = append(pages, Page{Number: i, Markdown: rowsToMarkdown(lines)})
	}

	if !hasText {
		return nil, fmt.Errorf("LocalPDF.Convert: %s: %w", doc.Name, ErrNoText)
	}
	return pages, nil
}

// rowsToMarkdown renders extracted lines. Runs of lines with at least
// minTableCells cells become a pipe table with a separator after the first
// line; other lines are written as prose.
func rowsToMarkdown(lines [][]string) string {
	var b strings.Builder
	inTable := false
	for _, cells := range lines {
		if len(cells) < minTableCells {
			inTable = false
			b.WriteString(strings.Join(cells, " "))
			b.WriteString("\n")
			continue
		}

		b.WriteString("| ")
		b.WriteString(strings.Join(escapePipes(cells), " | "))
		b.WriteString(" |\n")
		if !inTable {
			b.WriteString("|" + strings.Repeat(" --- |", len(cells)) + "\n")
			inTable = true
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escapePipes(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", "/")
	}
	return out
}
