package converter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
)

// fakeLlamaParse serves the three LlamaParse endpoints. The job reports
// PENDING for the first pendingPolls status checks.
func fakeLlamaParse(t *testing.T, pendingPolls int32, finalStatus string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "markdown", r.FormValue("result_type"))
		assert.Equal(t, "true", r.FormValue("premium_mode"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "statement.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4 fake", string(data))

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "PENDING"})
	})
	mux.HandleFunc("/api/parsing/job/job-1", func(w http.ResponseWriter, r *http.Request) {
		status := finalStatus
		if polls.Add(1) <= pendingPolls {
			status = "PENDING"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": status, "error_message": "bad pdf"})
	})
	mux.HandleFunc("/api/parsing/job/job-1/result/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pages": []map[string]any{
				{"page": 1, "md": "# Statement\n| Date | Description | Amount |\n|---|---|---|\n| 2023-01-01 | Salary | 5000 |"},
				{"page": 2, "md": "| Date | Description | Amount |\n|---|---|---|\n| 2023-01-05 | Rent | -1200 |"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestLlamaParse_Convert(t *testing.T) {
	srv, polls := fakeLlamaParse(t, 2, "SUCCESS")
	p := NewLlamaParse("test-key",
		WithBaseURL(srv.URL),
		WithPremium(true),
		WithPollInterval(time.Millisecond),
	)

	pages, err := p.Convert(context.Background(), Document{Name: "statement.pdf", Data: []byte("%PDF-1.4 fake")})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, int32(3), polls.Load())

	tables := markdown.Segment(Join(pages))
	assert.Len(t, tables, 2)
}

func TestLlamaParse_JobFailed(t *testing.T) {
	srv, _ := fakeLlamaParse(t, 0, "ERROR")
	p := NewLlamaParse("test-key", WithBaseURL(srv.URL), WithPremium(true), WithPollInterval(time.Millisecond))

	_, err := p.Convert(context.Background(), Document{Name: "statement.pdf", Data: []byte("%PDF-1.4 fake")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseJobFailed)
	assert.Contains(t, err.Error(), "bad pdf")
}

func TestLlamaParse_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewLlamaParse("wrong", WithBaseURL(srv.URL)).Convert(context.Background(), Document{Name: "s.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestLlamaParse_CancelWhilePolling(t *testing.T) {
	srv, _ := fakeLlamaParse(t, 1000, "SUCCESS")
	p := NewLlamaParse("test-key", WithBaseURL(srv.URL), WithPremium(true), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Convert(ctx, Document{Name: "statement.pdf", Data: []byte("%PDF-1.4 fake")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRowsToMarkdown(t *testing.T) {
	lines := [][]string{
		{"Barclays", "Bank"},
		{"Date", "Description", "Amount"},
		{"01 Jan", "Salary", "5,000.00"},
		{"05 Jan", "Rent|Flat", "1,200.00"},
		{"Closing", "balance"},
		{"Date", "Description", "Amount", "Balance"},
	}

	got := rowsToMarkdown(lines)
	want := "Barclays Bank\n" +
		"| Date | Description | Amount |\n" +
		"| --- | --- | --- |\n" +
		"| 01 Jan | Salary | 5,000.00 |\n" +
		"| 05 Jan | Rent/Flat | 1,200.00 |\n" +
		"Closing balance\n" +
		"| Date | Description | Amount | Balance |\n" +
		"| --- | --- | --- | --- |"
	assert.Equal(t, want, got)

	tables := markdown.Segment(got)
	require.Len(t, tables, 2)
	decoded := markdown.Decode(tables[0])
	assert.Equal(t, []string{"Date", "Description", "Amount"}, decoded.Header)
	assert.Len(t, decoded.Rows, 2)
}

func TestLocalPDF_InvalidInput(t *testing.T) {
	_, err := NewLocalPDF().Convert(context.Background(), Document{Name: "junk.pdf", Data: []byte("not a pdf")})
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var c Converter = Func(func(ctx context.Context, doc Document) ([]Page, error) {
		return []Page{{Number: 1, Markdown: doc.Name}}, nil
	})
	pages, err := c.Convert(context.Background(), Document{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", Join(pages))
}
