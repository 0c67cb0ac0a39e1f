// Package converter turns an uploaded statement into markdown pages.
package converter

import (
	"context"
	"strings"
)

// Document is an uploaded statement.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Page is one section of converted markdown.
type Page struct {
	Number   int
	Markdown string
}

// Converter converts a document to markdown. Any error is fatal to the run.
type Converter interface {
	Convert(ctx context.Context, doc Document) ([]Page, error)
}

// Func adapts a function to Converter.
type Func func(ctx context.Context, doc Document) ([]Page, error)

func (f Func) Convert(ctx context.Context, doc Document) ([]Page, error) {
	return f(ctx, doc)
}

// Join concatenates page markdown in page order, one blank line apart.
func Join(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Markdown)
	}
	return strings.Join(parts, "\n\n")
}
