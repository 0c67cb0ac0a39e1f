package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
)

func TestDigest(t *testing.T) {
	records := []SummaryRecord{
		{Source: "table0.md", Text: "Salary 2500"},
		{Source: "table1.md", Err: errors.New("timeout")},
		{Source: "table2.md", Text: "Rent 1200"},
	}

	got := Digest(records)
	assert.Equal(t, "File: table0.md\nSalary 2500\n\nFile: table2.md\nRent 1200\n\n", got)
	assert.Empty(t, Digest(nil))
}

func TestAggregator_UnderBudgetSingleCall(t *testing.T) {
	client := newMockClient().reply("reasoning", "5. Conclusion: Yes")
	agg := NewAggregator(client, testModels)

	records := []SummaryRecord{
		{Source: "table0.md", Text: "Salary 2500"},
		{Source: "table1.md", Text: "Rent 1200"},
	}
	final, digest, err := agg.Aggregate(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, FinalSummary("5. Conclusion: Yes"), final)
	assert.Equal(t, Digest(records), digest)
	assert.Empty(t, client.callsFor("summary"), "no condensing under budget")

	calls := client.callsFor("reasoning")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].Prompt, loanAnalysisPrompt))
	assert.True(t, strings.HasSuffix(calls[0].Prompt, digest))
	assert.Contains(t, calls[0].Prompt, "Debt-to-Income Ratio")
}

func TestAggregator_AllFailed(t *testing.T) {
	client := newMockClient()
	_, err := NewAggregator(client, testModels).Compose(context.Background(), []SummaryRecord{
		{Source: "table0.md", Err: errors.New("boom")},
	})
	assert.ErrorIs(t, err, ErrAllUnitsFailed)
	assert.Zero(t, client.callCount())
}

// smallModels give both the summary and reasoning models the minimum budget.
var smallModels = Models{
	Summary:   llm.Model{Name: "summary", NumCtx: 256},
	Reasoning: llm.Model{Name: "reasoning", NumCtx: 256},
}

func longRecords(n, size int) []SummaryRecord {
	recs := make([]SummaryRecord, n)
	for i := range recs {
		recs[i] = SummaryRecord{
			Source: fmt.Sprintf("table%d.md", i),
			Text:   strings.Repeat("spend ", size/6),
		}
	}
	return recs
}

func TestAggregator_CondensesOverBudget(t *testing.T) {
	client := newMockClient().reply("summary", "condensed")
	agg := NewAggregator(client, smallModels)
	require.Equal(t, minBudgetChars, agg.Budget())

	records := longRecords(4, 600)
	require.Greater(t, len(Digest(records)), agg.Budget())

	digest, err := agg.Compose(context.Background(), records)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(digest), agg.Budget())
	assert.NotContains(t, digest, truncationMarker)
	assert.Contains(t, digest, "condensed")

	calls := client.callsFor("summary")
	require.NotEmpty(t, calls)
	assert.Less(t, len(calls), len(records)+1)
	// Chunks are consecutive, so the first one starts at the first table.
	assert.Contains(t, calls[0].Prompt, "File: table0.md")
	assert.True(t, strings.HasPrefix(calls[0].Prompt, condensePrompt))
}

func TestAggregator_TruncatesAfterMaxRounds(t *testing.T) {
	stubborn := strings.Repeat("still too long\n", 200)
	client := newMockClient().reply("summary", stubborn)
	agg := NewAggregator(client, smallModels).WithLimits(0, 2)

	digest, err := agg.Compose(context.Background(), longRecords(3, 900))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(digest), agg.Budget())
	assert.True(t, strings.HasSuffix(digest, truncationMarker))
	assert.NotEmpty(t, client.callsFor("summary"))
}

func TestAggregator_ZeroRoundsTruncatesDirectly(t *testing.T) {
	client := newMockClient()
	agg := NewAggregator(client, smallModels).WithLimits(0, 0)

	digest, err := agg.Compose(context.Background(), longRecords(4, 600))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(digest), agg.Budget())
	assert.True(t, strings.HasSuffix(digest, truncationMarker))
	assert.Zero(t, client.callCount())
}

func TestAggregator_CondenseFailure(t *testing.T) {
	boom := errors.New("model crashed")
	client := newMockClient().on("summary", func(string) (string, error) { return "", boom })
	agg := NewAggregator(client, smallModels)

	_, err := agg.Compose(context.Background(), longRecords(4, 600))
	assert.ErrorIs(t, err, boom)
}

func TestAggregator_ReasonFailure(t *testing.T) {
	boom := errors.New("reasoning down")
	client := newMockClient().on("reasoning", func(string) (string, error) { return "", boom })

	final, digest, err := NewAggregator(client, testModels).Aggregate(context.Background(), []SummaryRecord{
		{Source: "table0.md", Text: "ok"},
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, final)
	assert.NotEmpty(t, digest)
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "fits", in: "short", n: 10, want: "short"},
		{name: "non-positive", in: "something", n: 0, want: ""},
		{name: "smaller than marker", in: strings.Repeat("a", 40), n: 5, want: "aaaaa"},
		{
			name: "cuts at line boundary",
			in:   "line one is here\nline two is here\nline three is here\n",
			n:    30 + len(truncationMarker),
			want: "line one is here" + truncationMarker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), max(tt.n, 0))
		})
	}
}

func TestTruncateText_KeepsRunesWhole(t *testing.T) {
	in := strings.Repeat("£", 30)
	got := truncateText(in, 3)
	assert.Equal(t, "£", got)
}
