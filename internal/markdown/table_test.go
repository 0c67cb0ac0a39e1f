package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Table
	}{
		{
			name: "header and rows",
			in:   "| Date | Description | Amount |\n|---|---|---|\n| 2023-01-01 | Salary | 5000 |\n| 2023-01-05 | Rent | -1200 |",
			want: Table{
				Header: []string{"Date", "Description", "Amount"},
				Rows: [][]string{
					{"2023-01-01", "Salary", "5000"},
					{"2023-01-05", "Rent", "-1200"},
				},
			},
		},
		{
			name: "malformed row dropped",
			in:   "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 |\n| 4 | 5 | 6 |\n| 7 | 8 |",
			want: Table{
				Header: []string{"a", "b"},
				Rows:   [][]string{{"1", "2"}, {"7", "8"}},
			},
		},
		{
			name: "separator line is skipped even when it looks like data",
			in:   "| a | b |\n| x | y |\n| 1 | 2 |",
			want: Table{
				Header: []string{"a", "b"},
				Rows:   [][]string{{"1", "2"}},
			},
		},
		{
			name: "header only",
			in:   "| Category | Amount |",
			want: Table{Header: []string{"Category", "Amount"}},
		},
		{
			name: "empty cells are kept",
			in:   "| a | b |\n|---|---|\n|  | 2 |",
			want: Table{
				Header: []string{"a", "b"},
				Rows:   [][]string{{"", "2"}},
			},
		},
		{
			name: "empty input",
			in:   "  \n",
			want: Table{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in))
		})
	}
}

func TestDecode_DropsOnlyMalformedRows(t *testing.T) {
	in := "| Date | Amount |\n|---|---|\n" +
		"| 01 | 1 |\n| 02 | 2 |\n| broken |\n| 03 | 3 |\n| 04 | 4 |"

	got := Decode(in)
	assert.Len(t, got.Rows, 4)
	for _, row := range got.Rows {
		assert.Len(t, row, got.Width())
	}
}

func TestEncode(t *testing.T) {
	table := Table{
		Header: []string{"Category", "Amount"},
		Rows:   [][]string{{"Rent", "1200.00"}, {"Utilities", "100.00"}},
	}

	want := "| Category | Amount |\n| --- | --- |\n| Rent | 1200.00 |\n| Utilities | 100.00 |"
	assert.Equal(t, want, Encode(table))
	assert.Equal(t, "", Encode(Table{}))
}

func TestRoundTrip(t *testing.T) {
	tables := []Table{
		{
			Header: []string{"Category", "Amount"},
			Rows:   [][]string{{"Rent", "1200.00"}, {"Food/Drink", "42.10"}},
		},
		{
			Header: []string{"Date", "Description", "Amount", "Category"},
			Rows: [][]string{
				{"2023-01-01", "Salary", "5000", "Deposits"},
				{"2023-01-05", "Rent", "-1200", "Fixed"},
			},
		},
		{Header: []string{"Only"}},
		{
			Header: []string{"a", "b"},
			Rows:   [][]string{{"", ""}},
		},
	}

	for _, table := range tables {
		assert.Equal(t, table, Decode(Encode(table)))
	}
}

func TestSplitRow(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitRow("  | a |  b |  "))
	assert.Equal(t, []string{}, SplitRow("|"))
	assert.Nil(t, SplitRow("no pipes"))
}
