package pipeline

import (
	"fmt"
	"strings"
)

const tableSummaryPrompt = "Imagine you are a bank statement analyzer. I have given you a table from a bank statement. " +
	"Summarize the transactions in this table. Identify income, debt, spending habits, and concerning transactions. " +
	"Include amounts for each section as evidence. Don't make it too long and only have the important details. No fluff."

const loanAnalysisPrompt = `Imagine you are a bank statement analyzer. I have provided you with summaries of tables from a bank statement. Based on this information, I need you to give me an in-depth analysis of whether this person should receive a loan. Your analysis should include the following:

1. **Income Stability**:
    - Analyze the consistency and frequency of income deposits.
    - Identify any irregularities or fluctuations in income.

2. **Debt-to-Income Ratio (DTI)**:
   - Calculate the DTI ratio using the formula: (Total Monthly Debt Payments / Monthly Income) * 100.
    - Only include debt payments (e.g., loans, credit card payments) in the calculation, not daily expenses.
    - Interpret the DTI ratio (e.g., < 20% is excellent, 20-35% is manageable, > 35% is risky).

3. **Spending Habits**:
    - Analyze recurring expenses (e.g., rent, utilities, subscriptions).
    - Identify discretionary spending (e.g., entertainment, dining out).
    - Look for patterns of overspending or financial mismanagement.

4. **Overall Financial Health**:
    - Check for red flags such as overdrafts, insufficient funds, or late payments.
    - Evaluate the consistency of deposits and expenses.
    - Assess the individual's ability to save or invest.

5. **Conclusion**:
    - Based on the above analysis, provide a clear recommendation (Yes or No) on whether the loan should be approved.
    - Justify your recommendation with specific insights from the data.

Here is the bank statement summary:


`

const condensePrompt = "The following are summaries of consecutive tables from one bank statement. " +
	"Merge them into a single shorter summary. Keep every income source, debt payment, recurring expense and " +
	"concerning transaction with its amount. Drop repetition. No fluff."

// Categories listed in the classification prompt. Keep in sync with
// Vocabulary.
const classifyPrompt = "Make sure you only output the new table and nothing else. No words, just the new table. " +
	"Possible Categories: Groceries, Transportation, Fees, Rent, Balance, Car, Utilities, Entertainment, " +
	"Food/Drink, Health, Shopping, Deposits, etc. If the table does not hold transactions do not edit it."

// The example header differs from the requested one; ParseCategoryTotals
// reads the first two cells of each row whatever the header says.
const aggregatePrompt = `Based on the following data, create a markdown expense table with two columns: "Category" and "Amount Expensed". Only categories that are expenses, not incomes should be included (salary should not be included). If the table does not include transactions, don't incorporate it. Make sure the table is the only output, with no explanation, extra words, or anything other than the table.

Example Output:
| Category     | Amount (£) |
|--------------|------------|
| Rent         | 500.00     |
| Utilities    | 100.00     |
| Groceries    | 150.00     |

Now, please generate the table from the data below:

`

func buildTableSummaryPrompt(table string) string {
	return tableSummaryPrompt + "\n\n" + table
}

func buildLoanAnalysisPrompt(digest string) string {
	return loanAnalysisPrompt + digest
}

func buildCondensePrompt(digest string) string {
	return condensePrompt + "\n\n" + digest
}

func buildClassifyPrompt(table string) string {
	return classifyPrompt + "\n\n" + table
}

func buildAggregatePrompt(tables []string) string {
	return aggregatePrompt + strings.Join(tables, "\n\n") + "\n\n"
}

// formatRecord renders one summary the way it appears in the digest.
func formatRecord(source, text string) string {
	return fmt.Sprintf("File: %s\n%s\n\n", source, text)
}
