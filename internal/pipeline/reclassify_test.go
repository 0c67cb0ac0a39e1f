package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
)

const statementTable = "| Date | Description | Amount |\n" +
	"|---|---|---|\n" +
	"| 01/01 | ACME PAYROLL | 2500.00 |\n" +
	"| 01/02 | LANDLORD LLC | -1200.00 |"

const classifiedTable = "| Date | Description | Amount |\n" +
	"|---|---|---|\n" +
	"| 01/01 | Deposits | 2500.00 |\n" +
	"| 01/02 | Rent | -1200.00 |"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReclassifier_EndToEnd(t *testing.T) {
	client := newMockClient().
		reply("classify", "```markdown\n"+classifiedTable+"\n```").
		reply("aggregate", "Here you go:\n\n| Category | Amount Expensed |\n|---|---|\n| Rent | 1200.00 |\n")

	totals, err := NewReclassifier(client, testModels).Reclassify(context.Background(), []string{statementTable})
	require.NoError(t, err)

	require.Len(t, totals.Amounts, 1)
	assert.True(t, totals.Amounts[CategoryRent].Equal(dec("1200")))
	_, hasDeposits := totals.Amounts[CategoryDeposits]
	assert.False(t, hasDeposits)
	assert.Empty(t, totals.Anomalies)

	classifyCalls := client.callsFor("classify")
	require.Len(t, classifyCalls, 1)
	assert.Contains(t, classifyCalls[0].Prompt, "ACME PAYROLL")

	aggCalls := client.callsFor("aggregate")
	require.Len(t, aggCalls, 1)
	assert.Contains(t, aggCalls[0].Prompt, "| 01/02 | Rent | -1200.00 |")
	assert.NotContains(t, aggCalls[0].Prompt, "```")
}

func TestReclassifier_StatementWithIncomeRows(t *testing.T) {
	doc := "Statement for January\n\n" +
		"| Date | Description | Amount | Category |\n" +
		"|---|---|---|---|\n" +
		"| 2023-01-01 | Salary | 5000 | Deposits |\n" +
		"| 2023-01-05 | Rent | -1200 | Fixed |\n" +
		"\nPage 2\n\n" +
		"| Date | Description | Amount | Category |\n" +
		"|---|---|---|---|\n" +
		"| 2023-02-01 | Salary | 5000 | Deposits |\n"
	tables := markdown.Segment(doc)
	require.Len(t, tables, 2)

	var prompts []string
	client := llm.ClientFunc(func(ctx context.Context, model llm.Model, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "| Rent | 1200.00 |", nil
	})

	totals, err := NewReclassifier(client, testModels).Reclassify(context.Background(), tables)
	require.NoError(t, err)

	require.Len(t, totals.Amounts, 1)
	assert.True(t, totals.Amounts[CategoryRent].Equal(dec("1200")))
	assert.True(t, totals.Total().Equal(dec("1200")))
	assert.Empty(t, totals.Anomalies)
	// Two classify calls and one aggregate call.
	assert.Len(t, prompts, 3)
}

func TestReclassifier_NoTables(t *testing.T) {
	client := newMockClient()
	_, err := NewReclassifier(client, testModels).Reclassify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTables)
	assert.Zero(t, client.callCount())
}

func TestReclassifier_ClassifyFailureFallsBack(t *testing.T) {
	client := newMockClient().
		on("classify", func(string) (string, error) { return "", errors.New("classifier offline") }).
		reply("aggregate", "| Category | Amount Expensed |\n|---|---|\n| Rent | 1200.00 |")

	r := NewReclassifier(client, testModels)
	classified, err := r.ClassifyTables(context.Background(), []string{statementTable, "| a | b |"})
	require.NoError(t, err)
	assert.Equal(t, []string{statementTable, "| a | b |"}, classified)

	totals, err := r.Reclassify(context.Background(), []string{statementTable})
	require.NoError(t, err)
	assert.True(t, totals.Amounts[CategoryRent].Equal(dec("1200")))
}

func TestReclassifier_ClassifyWithoutTableFallsBack(t *testing.T) {
	client := newMockClient().reply("classify", "I cannot categorize this.")
	classified, err := NewReclassifier(client, testModels).ClassifyTables(context.Background(), []string{statementTable})
	require.NoError(t, err)
	assert.Equal(t, []string{statementTable}, classified)
}

func TestReclassifier_AggregateFailureIsFatal(t *testing.T) {
	boom := errors.New("aggregate model missing")
	client := newMockClient().on("aggregate", func(string) (string, error) { return "", boom })

	_, err := NewReclassifier(client, testModels).Reclassify(context.Background(), []string{statementTable})
	assert.ErrorIs(t, err, boom)
}

func TestReclassifier_Cancelled(t *testing.T) {
	client := newMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReclassifier(client, testModels).Reclassify(ctx, []string{statementTable})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, client.callCount())
}

func TestParseCategoryTotals(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      map[Category]string
		anomalies []string
	}{
		{
			name: "single expense",
			raw:  "| Category | Amount Expensed |\n|---|---|\n| Rent | 1200.00 |",
			want: map[Category]string{CategoryRent: "1200"},
		},
		{
			name: "income and balance skipped",
			raw: "| Category | Amount Expensed |\n|---|---|\n" +
				"| Deposits | 2500.00 |\n| Balance | 900.00 |\n| Groceries | 85.20 |",
			want: map[Category]string{CategoryGroceries: "85.20"},
		},
		{
			name: "unknown label folds into other",
			raw: "| Category | Amount Expensed |\n|---|---|\n" +
				"| Coffee Shops | 12.50 |\n| Gym | 30 |\n| Rent | 500 |",
			want:      map[Category]string{CategoryOther: "42.50", CategoryRent: "500"},
			anomalies: []string{"Coffee Shops", "Gym"},
		},
		{
			name: "formatting and duplicates",
			raw: "```\n| Category | Amount Expensed |\n|---|---|\n" +
				"| rent | £1,200.00 |\n| RENT | 50 |\n| food & drink | $20.00 |\n```",
			want: map[Category]string{CategoryRent: "1250", CategoryFoodDrink: "20"},
		},
		{
			name: "total and non-positive rows skipped",
			raw: "| Category | Amount Expensed |\n|---|---|\n" +
				"| Fees | (12.50) |\n| Car | 0 |\n| Utilities | 100 |\n| **Total** | 100 |",
			want: map[Category]string{CategoryUtilities: "100"},
		},
		{
			name: "swapped columns",
			raw:  "| Amount Expensed | Category |\n|---|---|\n| 45.00 | Health |",
			want: map[Category]string{CategoryHealth: "45"},
		},
		{
			name: "headerless",
			raw:  "| Rent | 1200.00 |\n| Shopping | 60.00 |",
			want: map[Category]string{CategoryRent: "1200", CategoryShopping: "60"},
		},
		{
			name: "extra cells ignored",
			raw:  "| Category | Amount Expensed |\n|---|---|\n| Rent | 1200.00 | monthly |\n| Car | 40 |",
			want: map[Category]string{CategoryRent: "1200", CategoryCar: "40"},
		},
		{
			name: "headerless with extra cells",
			raw:  "| Rent | 1200.00 |\n| Utilities | 80.00 | direct debit |",
			want: map[Category]string{CategoryRent: "1200", CategoryUtilities: "80"},
		},
		{
			name: "header without separator",
			raw:  "| Category | Amount Expensed |\n| Fees | 3.50 |",
			want: map[Category]string{CategoryFees: "3.50"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := ParseCategoryTotals(context.Background(), tt.raw)
			require.NoError(t, err)

			require.Len(t, totals.Amounts, len(tt.want))
			for cat, amount := range tt.want {
				got, ok := totals.Amounts[cat]
				require.True(t, ok, "missing %s", cat)
				assert.True(t, got.Equal(dec(amount)), "%s: got %s want %s", cat, got, amount)
			}
			assert.Equal(t, tt.anomalies, totals.Anomalies)
		})
	}
}

func TestParseCategoryTotals_NotANumber(t *testing.T) {
	raw := "| Category | Amount Expensed |\n|---|---|\n| Groceries | 20 |\n| Rent | N/A |"

	_, err := ParseCategoryTotals(context.Background(), raw)
	require.Error(t, err)

	var rowErr *RowParseError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "N/A", rowErr.Value)
	assert.Equal(t, "| Rent | N/A |", rowErr.Row)
}

func TestParseCategoryTotals_ShortRow(t *testing.T) {
	raw := "| Category | Amount Expensed |\n|---|---|\n| Rent | 1200.00 |\n| Groceries |"

	_, err := ParseCategoryTotals(context.Background(), raw)
	var rowErr *RowParseError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "| Groceries |", rowErr.Row)
	assert.Contains(t, err.Error(), "malformed row")
}

func TestParseCategoryTotals_NoTable(t *testing.T) {
	_, err := ParseCategoryTotals(context.Background(), "There were no expenses.")
	assert.ErrorIs(t, err, ErrNoCategoryTable)

	_, err = ParseCategoryTotals(context.Background(), "| Category |\n|---|\n| Rent |")
	assert.ErrorIs(t, err, ErrNoCategoryTable)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1,200.00", want: "1200"},
		{in: " £45 ", want: "45"},
		{in: "(12.50)", want: "-12.5"},
		{in: "-3", want: "-3"},
		{in: "€7.10", want: "7.1"},
		{in: "N/A", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}
