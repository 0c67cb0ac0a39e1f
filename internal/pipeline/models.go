package pipeline

import (
	"slices"
	"time"
)

// TableUnit is one extracted table and the staged artifact name it came
// from. It is the unit of parallel summarization work.
type TableUnit struct {
	Source   string
	Markdown string
}

// SummaryRecord is the narrative produced for one TableUnit. Err is set
// when the unit could not be summarized; Text is then empty.
type SummaryRecord struct {
	Source string `json:"source"`
	Text   string `json:"text,omitempty"`
	Err    error  `json:"-"`
}

// Failed reports whether the unit failed.
func (r SummaryRecord) Failed() bool {
	return r.Err != nil
}

// FinalSummary is the loan-worthiness narrative from the reasoning model.
type FinalSummary string

// Result holds the artifacts of a run. Fields are filled as stages
// complete, so a failed run still exposes the stages that finished.
type Result struct {
	RunID    string `json:"run_id"`
	Document string `json:"document"`

	// Tables are the extracted table blocks in document order.
	Tables []string `json:"tables"`
	// NoTables is set when conversion produced no tables; no model was
	// called and the remaining fields are empty.
	NoTables bool `json:"no_tables"`

	// Summaries are in table order and include failed units.
	Summaries []SummaryRecord `json:"summaries"`
	// Digest is the concatenated summary document that was reasoned over.
	// It is also the context for follow-up chat.
	Digest       string          `json:"digest,omitempty"`
	FinalSummary FinalSummary    `json:"final_summary,omitempty"`
	Categories   *CategoryTotals `json:"categories,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Clone returns a copy of r that shares no slices or maps with it.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Tables = slices.Clone(r.Tables)
	c.Summaries = slices.Clone(r.Summaries)
	c.Categories = r.Categories.Clone()
	return &c
}

// Failures returns the summary records whose unit failed.
func (r *Result) Failures() []SummaryRecord {
	var out []SummaryRecord
	for _, rec := range r.Summaries {
		if rec.Failed() {
			out = append(out, rec)
		}
	}
	return out
}
