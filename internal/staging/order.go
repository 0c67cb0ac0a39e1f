package staging

import (
	"sort"
	"strings"
	"unicode"
)

// SortNames returns names in natural order: runs of digits compare by
// numeric value, so "table2.md" sorts before "table10.md". Names whose runs
// are all equal (e.g. "table01" and "table1") fall back to plain string
// comparison, which keeps the order total. The input is not modified.
func SortNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less reports whether a sorts before b in natural order.
func Less(a, b string) bool {
	if c := compareChunks(chunks(a), chunks(b)); c != 0 {
		return c < 0
	}
	return a < b
}

type chunk struct {
	text    string
	numeric bool
}

func chunks(s string) []chunk {
	var out []chunk
	start := 0
	for i, r := range s {
		if i == start {
			continue
		}
		prev := isDigit(rune(s[i-1]))
		if isDigit(r) != prev {
			out = append(out, chunk{text: s[start:i], numeric: prev})
			start = i
		}
	}
	if start < len(s) {
		out = append(out, chunk{text: s[start:], numeric: isDigit(rune(s[start]))})
	}
	return out
}

func compareChunks(a, b []chunk) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := a[i], b[i]
		switch {
		case x.numeric && y.numeric:
			if c := compareNumeric(x.text, y.text); c != 0 {
				return c
			}
		case x.numeric != y.numeric:
			// digits sort ahead of text
			if x.numeric {
				return -1
			}
			return 1
		default:
			if c := strings.Compare(x.text, y.text); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// compareNumeric compares digit strings of any length without overflow.
func compareNumeric(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

func isDigit(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsDigit(r)
}
