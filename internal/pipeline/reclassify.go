package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
)

// Reclassifier turns extracted tables into expense totals in two phases:
// each table's descriptions are rewritten into categories, then all
// rewritten tables are folded into one Category/Amount table by a second
// model and parsed.
type Reclassifier struct {
	client    llm.Client
	classify  llm.Model
	aggregate llm.Model
}

// NewReclassifier creates a Reclassifier using the classify and aggregate
// models.
func NewReclassifier(client llm.Client, models Models) *Reclassifier {
	return &Reclassifier{
		client:    client,
		classify:  models.Classify,
		aggregate: models.Aggregate,
	}
}

// Reclassify runs both phases and parses the result. ctx is checked
// between tables and between the phases.
func (r *Reclassifier) Reclassify(ctx context.Context, tables []string) (*CategoryTotals, error) {
	classified, err := r.ClassifyTables(ctx, tables)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := r.AggregateCategories(ctx, classified)
	if err != nil {
		return nil, err
	}
	return ParseCategoryTotals(ctx, raw)
}

// ClassifyTables rewrites each table's descriptions into categories. A
// table the model fails on, or answers without a table, is passed on
// unchanged so the aggregation model still sees its rows.
func (r *Reclassifier) ClassifyTables(ctx context.Context, tables []string) ([]string, error) {
	log := logger.FromContext(ctx)
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	out := make([]string, 0, len(tables))
	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := r.client.Generate(ctx, r.classify, buildClassifyPrompt(table))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("table", i).Msg("classification failed, using original table")
			out = append(out, table)
			continue
		}

		rewritten, ok := markdown.FirstTable(resp)
		if !ok {
			log.Warn().Int("table", i).Msg("classification returned no table, using original table")
			out = append(out, table)
			continue
		}
		out = append(out, rewritten)
	}
	return out, nil
}

// AggregateCategories asks the aggregation model for one Category/Amount
// table over all classified tables and returns its raw answer.
func (r *Reclassifier) AggregateCategories(ctx context.Context, classified []string) (string, error) {
	if len(classified) == 0 {
		return "", ErrNoTables
	}
	raw, err := r.client.Generate(ctx, r.aggregate, buildAggregatePrompt(classified))
	if err != nil {
		return "", fmt.Errorf("AggregateCategories: %w", err)
	}
	return raw, nil
}

// ParseCategoryTotals parses the aggregation model's answer. Each row
// contributes its category and amount cells and any extra cells are
// ignored. A row too short to hold both, or an amount that is not a
// number, fails the whole parse with a *RowParseError. Amounts of zero or
// less, income categories and total lines are skipped. Unknown categories
// are summed under CategoryOther and listed in Anomalies.
func ParseCategoryTotals(ctx context.Context, raw string) (*CategoryTotals, error) {
	log := logger.FromContext(ctx)

	block, ok := markdown.FirstTable(raw)
	if !ok {
		return nil, ErrNoCategoryTable
	}
	table := decodeCategoryTable(block)
	if len(table.header) < 2 {
		return nil, fmt.Errorf("%w: expected two columns, got header %v", ErrNoCategoryTable, table.header)
	}
	catCol, amountCol := categoryColumns(table.header)

	totals := NewCategoryTotals()
	for _, row := range table.rows {
		if len(row) <= max(catCol, amountCol) {
			return nil, &RowParseError{Row: rowText(row), Err: errShortRow}
		}
		label := row[catCol]
		value := row[amountCol]

		if isTotalLabel(label) {
			continue
		}
		amount, err := parseAmount(value)
		if err != nil {
			return nil, &RowParseError{Row: rowText(row), Value: value, Err: err}
		}
		if !amount.IsPositive() {
			log.Debug().Str("category", label).Str("amount", value).Msg("skipping non-positive amount")
			continue
		}

		cat, known := ParseCategory(label)
		switch {
		case !known:
			log.Warn().Str("category", label).Msg("unknown category, folding into other")
			totals.Anomalies = append(totals.Anomalies, label)
			cat = CategoryOther
		case !cat.IsExpense():
			log.Debug().Str("category", label).Msg("skipping non-expense category")
			continue
		}
		totals.Add(cat, amount)
	}
	return totals, nil
}

var errShortRow = errors.New("row has no amount cell")

// categoryTable is a loosely decoded category table. Rows keep every cell
// they have, so their widths may differ from the header.
type categoryTable struct {
	header []string
	rows   [][]string
}

// decodeCategoryTable skips the header and separator lines. Models
// sometimes omit both; when the first line already holds a numeric amount
// every non-separator line is taken as data.
func decodeCategoryTable(block string) categoryTable {
	lines := strings.Split(block, "\n")
	first := markdown.SplitRow(lines[0])

	table := categoryTable{header: first}
	data := lines[1:]
	if len(first) >= 2 && !hasHeaderWords(first) {
		if _, err := parseAmount(first[1]); err == nil {
			table.header = []string{"Category", "Amount"}
			data = lines
		}
	}

	for _, line := range data {
		cells := markdown.SplitRow(line)
		if len(cells) == 0 || isSeparator(cells) {
			continue
		}
		table.rows = append(table.rows, cells)
	}
	return table
}

func hasHeaderWords(cells []string) bool {
	for _, c := range cells {
		n := normalizeCategory(c)
		if strings.Contains(n, "CATEGORY") || strings.Contains(n, "AMOUNT") {
			return true
		}
	}
	return false
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func rowText(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

// categoryColumns picks the category and amount columns by header name,
// defaulting to the first two columns.
func categoryColumns(header []string) (catCol, amountCol int) {
	catCol, amountCol = 0, 1
	for i, h := range header {
		switch n := normalizeCategory(h); {
		case strings.Contains(n, "CATEGORY"):
			catCol = i
		case strings.Contains(n, "AMOUNT"):
			amountCol = i
		}
	}
	if catCol == amountCol {
		catCol, amountCol = 0, 1
	}
	return catCol, amountCol
}

func isTotalLabel(label string) bool {
	switch normalizeCategory(strings.Trim(label, "*_ ")) {
	case "TOTAL", "GRAND TOTAL", "TOTAL EXPENSES":
		return true
	}
	return false
}

var amountReplacer = strings.NewReplacer(",", "", "£", "", "$", "", "€", "", " ", "", "*", "")

// parseAmount reads a money cell such as "1,200.00", "£45" or "(12.50)".
func parseAmount(s string) (decimal.Decimal, error) {
	clean := amountReplacer.Replace(strings.TrimSpace(s))
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = clean[1 : len(clean)-1]
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
