package markdown

import (
	"strings"
)

// Segment splits markdown text into its table blocks, in source order. A
// block is a maximal run of consecutive row lines (see IsRow) joined with
// "\n" exactly as they appeared. Prose lines end a run and are not kept.
func Segment(text string) []string {
	var (
		blocks  []string
		current []string
	)

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if IsRow(line) {
			current = append(current, line)
			continue
		}
		flush()
	}
	flush()

	return blocks
}

// FirstTable returns the first table block in text, tolerating code fences
// and prose around it. ok is false when text holds no table.
func FirstTable(text string) (table string, ok bool) {
	blocks := Segment(StripFences(text))
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0], true
}

// StripFences removes a surrounding ``` or ```markdown fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
