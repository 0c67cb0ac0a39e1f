package pipeline

import (
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
)

// Models names the model used for each kind of call.
type Models struct {
	// Summary summarizes single tables and condenses oversized digests.
	Summary llm.Model `mapstructure:"summary"`
	// Reasoning writes the final loan-worthiness analysis.
	Reasoning llm.Model `mapstructure:"reasoning"`
	// Classify rewrites table descriptions into categories.
	Classify llm.Model `mapstructure:"classify"`
	// Aggregate folds categorized tables into one Category/Amount table.
	Aggregate llm.Model `mapstructure:"aggregate"`
	// Chat answers follow-up questions.
	Chat llm.Model `mapstructure:"chat"`
}

// DefaultModels are the Ollama models the prompts were tuned against.
func DefaultModels() Models {
	return Models{
		Summary:   llm.Model{Name: "gemma2:9b", NumCtx: 4096},
		Reasoning: llm.Model{Name: "phi4", NumCtx: 8192},
		Classify:  llm.Model{Name: "categorize_transactions_mistral", NumCtx: 8192},
		Aggregate: llm.Model{Name: "sum_categories_phi4", NumCtx: 8192},
		Chat:      llm.Model{Name: "gemma2:9b", NumCtx: 8192},
	}
}

const (
	// charsPerToken approximates tokens for budgeting prompt sizes.
	charsPerToken = 4

	// DefaultOutputReserveTokens is kept free in the reasoning window for
	// the model's answer.
	DefaultOutputReserveTokens = 1024

	// DefaultMaxCondenseRounds bounds recursive re-summarization.
	DefaultMaxCondenseRounds = 3

	truncationMarker = "\n[... truncated ...]\n"
)
