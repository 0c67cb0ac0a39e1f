package converter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
)

// DefaultGeminiModel is the model used for PDF to markdown conversion.
const DefaultGeminiModel = "gemini-2.5-flash"

const geminiConvertPrompt = "You are converting a bank statement PDF to markdown.\n\n" +
	"Rules:\n" +
	"- Reproduce every table in the document as a GitHub pipe table with a header row and a separator row.\n" +
	"- Every table row must start and end with a | character.\n" +
	"- Keep all rows, dates, descriptions and amounts exactly as printed.\n" +
	"- Render text outside tables as plain paragraphs.\n" +
	"- Output markdown only, no commentary."

// Gemini converts PDFs by sending them inline to a Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a converter using an existing genai client.
func NewGemini(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}
}

func (g *Gemini) Convert(ctx context.Context, doc Document) ([]Page, error) {
	mimeType := doc.MIMEType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: geminiConvertPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Gemini.Convert: generate content: %w", err)
	}

	md := markdown.StripFences(resp.Text())
	if strings.TrimSpace(md) == "" {
		return nil, errors.New("Gemini.Convert: empty response from model")
	}
	return []Page{{Number: 1, Markdown: md}}, nil
}
