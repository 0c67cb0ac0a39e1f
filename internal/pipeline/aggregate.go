package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

// minBudgetChars keeps budgets usable when a model has a tiny window.
const minBudgetChars = 1024

// Aggregator folds per-table summaries into one digest and runs the
// loan-worthiness analysis over it. A digest too large for the reasoning
// model's window is condensed with the summary model, a chunk at a time,
// for up to maxRounds rounds, then truncated.
type Aggregator struct {
	client        llm.Client
	summary       llm.Model
	reasoning     llm.Model
	outputReserve int
	maxRounds     int
}

// NewAggregator creates an Aggregator using the summary and reasoning models.
func NewAggregator(client llm.Client, models Models) *Aggregator {
	return &Aggregator{
		client:        client,
		summary:       models.Summary,
		reasoning:     models.Reasoning,
		outputReserve: DefaultOutputReserveTokens,
		maxRounds:     DefaultMaxCondenseRounds,
	}
}

// WithLimits overrides the output reserve (tokens) and condense rounds.
// Non-positive reserve keeps the default; negative rounds keep the default.
func (a *Aggregator) WithLimits(outputReserveTokens, maxRounds int) *Aggregator {
	if outputReserveTokens > 0 {
		a.outputReserve = outputReserveTokens
	}
	if maxRounds >= 0 {
		a.maxRounds = maxRounds
	}
	return a
}

// Digest concatenates the successful records in order, each tagged with
// its source.
func Digest(records []SummaryRecord) string {
	var b strings.Builder
	for _, r := range records {
		if r.Failed() {
			continue
		}
		b.WriteString(formatRecord(r.Source, r.Text))
	}
	return b.String()
}

// Budget is the largest digest, in characters, the reasoning call accepts.
func (a *Aggregator) Budget() int {
	return windowBudget(a.reasoning, len(loanAnalysisPrompt), a.outputReserve)
}

func (a *Aggregator) chunkBudget() int {
	return windowBudget(a.summary, len(condensePrompt), a.outputReserve)
}

func windowBudget(m llm.Model, promptLen, reserveTokens int) int {
	b := m.NumCtx*charsPerToken - promptLen - reserveTokens*charsPerToken
	if b < minBudgetChars {
		return minBudgetChars
	}
	return b
}

// Compose builds the digest handed to the reasoning model, condensing it
// until it fits the budget.
func (a *Aggregator) Compose(ctx context.Context, records []SummaryRecord) (string, error) {
	log := logger.FromContext(ctx)

	recs := make([]SummaryRecord, 0, len(records))
	for _, r := range records {
		if !r.Failed() {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		return "", ErrAllUnitsFailed
	}

	budget := a.Budget()
	digest := Digest(recs)
	for round := 1; len(digest) > budget && round <= a.maxRounds; round++ {
		log.Info().
			Int("round", round).
			Int("digest_chars", len(digest)).
			Int("budget_chars", budget).
			Int("records", len(recs)).
			Msg("digest over budget, condensing")

		var err error
		recs, err = a.condense(ctx, recs)
		if err != nil {
			return "", fmt.Errorf("Compose: round %d: %w", round, err)
		}
		digest = Digest(recs)
	}

	if len(digest) > budget {
		log.Warn().
			Int("digest_chars", len(digest)).
			Int("budget_chars", budget).
			Msg("digest still over budget, truncating")
		digest = truncateText(digest, budget)
	}
	return digest, nil
}

// condense merges consecutive records into chunks that fit the summary
// model and replaces each chunk with one condensed record.
func (a *Aggregator) condense(ctx context.Context, recs []SummaryRecord) ([]SummaryRecord, error) {
	chunkBudget := a.chunkBudget()

	var (
		groups  [][]SummaryRecord
		current []SummaryRecord
		size    int
	)
	for _, r := range recs {
		n := len(formatRecord(r.Source, r.Text))
		if n > chunkBudget {
			overhead := n - len(r.Text)
			r.Text = truncateText(r.Text, chunkBudget-overhead)
			n = len(formatRecord(r.Source, r.Text))
		}
		if size+n > chunkBudget && len(current) > 0 {
			groups = append(groups, current)
			current, size = nil, 0
		}
		current = append(current, r)
		size += n
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	out := make([]SummaryRecord, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := a.client.Generate(ctx, a.summary, buildCondensePrompt(Digest(g)))
		if err != nil {
			return nil, fmt.Errorf("condense %s: %w", groupSource(g), err)
		}
		out = append(out, SummaryRecord{Source: groupSource(g), Text: text})
	}
	return out, nil
}

func groupSource(g []SummaryRecord) string {
	if len(g) == 1 {
		return g[0].Source
	}
	return g[0].Source + " to " + g[len(g)-1].Source
}

// Reason runs the loan-worthiness analysis over a composed digest and
// returns the model's answer verbatim.
func (a *Aggregator) Reason(ctx context.Context, digest string) (FinalSummary, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := a.client.Generate(ctx, a.reasoning, buildLoanAnalysisPrompt(digest))
	if err != nil {
		return "", fmt.Errorf("Reason: %w", err)
	}
	return FinalSummary(out), nil
}

// Aggregate composes the digest and reasons over it.
func (a *Aggregator) Aggregate(ctx context.Context, records []SummaryRecord) (FinalSummary, string, error) {
	digest, err := a.Compose(ctx, records)
	if err != nil {
		return "", "", err
	}
	final, err := a.Reason(ctx, digest)
	if err != nil {
		return "", digest, err
	}
	return final, digest, nil
}

// truncateText shortens s to at most n bytes, preferring a line boundary,
// and marks the cut.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	keep := n - len(truncationMarker)
	if keep <= 0 {
		return s[:runeBoundary(s, n)]
	}
	cut := runeBoundary(s, keep)
	if nl := strings.LastIndexByte(s[:cut], '\n'); nl > keep/2 {
		cut = nl
	}
	return s[:cut] + truncationMarker
}

// runeBoundary returns the largest index <= i that starts a rune.
func runeBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
