// Package markdown parses and renders the pipe tables found in converted
// bank statements.
package markdown

import (
	"strings"
)

// Delimiter separates cells in a pipe table row.
const Delimiter = "|"

// Table is a decoded pipe table. Every row in Rows has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Width returns the number of columns.
func (t Table) Width() int {
	return len(t.Header)
}

// IsRow reports whether a line is a pipe-table row: its trimmed form starts
// and ends with the delimiter.
func IsRow(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, Delimiter) && strings.HasSuffix(s, Delimiter)
}

// SplitRow returns the trimmed cells of a row, dropping the empty fields
// outside the leading and trailing delimiters. Lines that are not rows
// yield nil.
func SplitRow(line string) []string {
	s := strings.TrimSpace(line)
	parts := strings.Split(s, Delimiter)
	if len(parts) < 2 {
		return nil
	}
	parts = parts[1 : len(parts)-1]

	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// Decode parses a pipe table. Line 0 is the header and line 1 the separator,
// which is always skipped. Data rows whose cell count differs from the
// header are dropped.
func Decode(text string) Table {
	text = strings.TrimSpace(text)
	if text == "" {
		return Table{}
	}

	lines := strings.Split(text, "\n")
	t := Table{Header: SplitRow(lines[0])}
	if len(lines) < 3 {
		return t
	}

	t.Rows = make([][]string, 0, len(lines)-2)
	for _, line := range lines[2:] {
		cells := SplitRow(line)
		if len(cells) != len(t.Header) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// Encode renders t as a pipe table with a header separator line.
// Decode(Encode(t)) == t for rectangular tables with trimmed cells.
func Encode(t Table) string {
	if len(t.Header) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow(&b, t.Header)

	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)

	for _, row := range t.Rows {
		writeRow(&b, row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString(Delimiter)
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" ")
		b.WriteString(Delimiter)
	}
	b.WriteString("\n")
}
