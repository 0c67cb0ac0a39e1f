package pipeline

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
)

// Category is an entry of the closed expense vocabulary.
type Category string

const (
	CategoryGroceries      Category = "Groceries"
	CategoryTransportation Category = "Transportation"
	CategoryFees           Category = "Fees"
	CategoryRent           Category = "Rent"
	CategoryBalance        Category = "Balance"
	CategoryCar            Category = "Car"
	CategoryUtilities      Category = "Utilities"
	CategoryEntertainment  Category = "Entertainment"
	CategoryFoodDrink      Category = "Food/Drink"
	CategoryHealth         Category = "Health"
	CategoryShopping       Category = "Shopping"
	CategoryDeposits       Category = "Deposits"

	// CategoryOther collects labels outside the vocabulary.
	CategoryOther Category = "Other/Unclassified"
)

// Vocabulary lists the categories the classification prompt offers.
var Vocabulary = []Category{
	CategoryGroceries, CategoryTransportation, CategoryFees, CategoryRent,
	CategoryBalance, CategoryCar, CategoryUtilities, CategoryEntertainment,
	CategoryFoodDrink, CategoryHealth, CategoryShopping, CategoryDeposits,
}

// IsExpense reports whether amounts in c count as spending. Deposits are
// income and Balance is a running total, so neither is.
func (c Category) IsExpense() bool {
	return c != CategoryDeposits && c != CategoryBalance
}

var categoryIndex = func() map[string]Category {
	idx := make(map[string]Category, len(Vocabulary)+8)
	for _, c := range Vocabulary {
		idx[normalizeCategory(string(c))] = c
	}
	idx[normalizeCategory(string(CategoryOther))] = CategoryOther
	aliases := map[string]Category{
		"FOOD & DRINK":   CategoryFoodDrink,
		"FOOD AND DRINK": CategoryFoodDrink,
		"FOOD":           CategoryFoodDrink,
		"TRANSPORT":      CategoryTransportation,
		"DEPOSIT":        CategoryDeposits,
		"GROCERY":        CategoryGroceries,
		"UTILITY":        CategoryUtilities,
		"FEE":            CategoryFees,
	}
	for k, v := range aliases {
		idx[k] = v
	}
	return idx
}()

// ParseCategory maps a model-produced label onto the vocabulary,
// ignoring case and surrounding space. ok is false for unknown labels.
func ParseCategory(label string) (c Category, ok bool) {
	c, ok = categoryIndex[normalizeCategory(label)]
	return c, ok
}

// normalizeCategory normalizes a category name for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// CategoryTotals maps expense categories to their summed amounts.
// Only strictly positive amounts are ever added.
type CategoryTotals struct {
	Amounts map[Category]decimal.Decimal `json:"amounts"`
	// Anomalies lists model labels that were not in the vocabulary and were
	// folded into CategoryOther.
	Anomalies []string `json:"anomalies,omitempty"`
}

// NewCategoryTotals returns an empty mapping.
func NewCategoryTotals() *CategoryTotals {
	return &CategoryTotals{Amounts: make(map[Category]decimal.Decimal)}
}

// Clone returns a deep copy of t.
func (t *CategoryTotals) Clone() *CategoryTotals {
	if t == nil {
		return nil
	}
	return &CategoryTotals{Amounts: maps.Clone(t.Amounts), Anomalies: slices.Clone(t.Anomalies)}
}

// Add accumulates amount under c.
func (t *CategoryTotals) Add(c Category, amount decimal.Decimal) {
	t.Amounts[c] = t.Amounts[c].Add(amount)
}

// Total is the sum over every category.
func (t *CategoryTotals) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t.Amounts {
		sum = sum.Add(v)
	}
	return sum
}

// ChartSeries is a chart-ready projection of CategoryTotals.
type ChartSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Series orders categories by amount, largest first, ties by name.
func (t *CategoryTotals) Series() ChartSeries {
	cats := make([]Category, 0, len(t.Amounts))
	for c := range t.Amounts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cmp := t.Amounts[cats[i]].Cmp(t.Amounts[cats[j]]); cmp != 0 {
			return cmp > 0
		}
		return cats[i] < cats[j]
	})

	s := ChartSeries{
		Labels: make([]string, len(cats)),
		Values: make([]float64, len(cats)),
	}
	for i, c := range cats {
		s.Labels[i] = string(c)
		s.Values[i] = t.Amounts[c].InexactFloat64()
	}
	return s
}

// Table renders the totals as a Category/Amount markdown table in Series
// order.
func (t *CategoryTotals) Table() markdown.Table {
	series := t.Series()
	table := markdown.Table{Header: []string{"Category", "Amount"}}
	for _, label := range series.Labels {
		table.Rows = append(table.Rows, []string{label, t.Amounts[Category(label)].StringFixed(2)})
	}
	return table
}

// String renders the totals as markdown.
func (t *CategoryTotals) String() string {
	return markdown.Encode(t.Table())
}
