package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs/inmemory"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

// fakePublisher records published jobs.
type fakePublisher struct {
	mu        sync.Mutex
	published []*jobs.AnalyzeStatementJob
	err       error
}

func (p *fakePublisher) PublishAnalyzeStatement(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	job.JobID = "job-" + job.Document
	job.Status = jobs.JobStatusPending
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type testServer struct {
	handler   http.Handler
	store     *inmemory.Store
	publisher *fakePublisher
	prompts   []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{store: inmemory.NewStore(), publisher: &fakePublisher{}}

	client := llm.ClientFunc(func(ctx context.Context, model llm.Model, prompt string) (string, error) {
		ts.prompts = append(ts.prompts, prompt)
		return "Rent is your largest expense.", nil
	})
	chat := pipeline.NewChat(client, pipeline.DefaultModels())

	log := zerolog.New(io.Discard)
	ts.handler = NewRouter(
		NewStatementsHandler(ts.publisher, 1<<20, log),
		NewJobsHandler(ts.store, log),
		NewChatHandler(ts.store, chat, log),
		log,
	)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestCreateStatement_Upload(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "file", "march.pdf", []byte("%PDF-1.4 statement")))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "job-march.pdf", resp["job_id"])
	assert.Equal(t, "march.pdf", resp["document"])
	assert.Equal(t, "pending", resp["status"])

	require.Len(t, ts.publisher.published, 1)
	job := ts.publisher.published[0]
	assert.Equal(t, []byte("%PDF-1.4 statement"), job.Data)
	assert.Equal(t, "application/octet-stream", job.MIMEType)
	assert.Empty(t, job.Source)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateStatement_GCS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/statements", strings.NewReader(`{"gcs_uri":"gs://statements/2024/march.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, ts.publisher.published, 1)
	job := ts.publisher.published[0]
	assert.Equal(t, "gs://statements/2024/march.pdf", job.Source)
	assert.Equal(t, "march.pdf", job.Document)
	assert.Nil(t, job.Data)
}

func TestCreateStatement_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	jsonReq := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/statements", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "missing file", req: multipartRequest(t, "", "", nil)},
		{name: "empty file", req: multipartRequest(t, "file", "empty.pdf", nil)},
		{name: "too large", req: multipartRequest(t, "file", "huge.pdf", bytes.Repeat([]byte("x"), 2<<20))},
		{name: "bad json", req: jsonReq("{")},
		{name: "not a gcs uri", req: jsonReq(`{"gcs_uri":"https://example.com/a.pdf"}`)},
		{name: "unsupported content type", req: httptest.NewRequest(http.MethodPost, "/api/statements", strings.NewReader("raw"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, ts.publisher.published)
}

func TestCreateStatement_QueueUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.err = inmemory.ErrQueueClosed

	rec := ts.do(multipartRequest(t, "file", "march.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func completedJob() *jobs.AnalyzeStatementJob {
	done := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	return &jobs.AnalyzeStatementJob{
		JobID:       "job-1",
		Document:    "march.pdf",
		Status:      jobs.JobStatusCompleted,
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
		Result: &pipeline.Result{
			Document: "march.pdf",
			Tables:   []string{"| a |", "| b |"},
			Summaries: []pipeline.SummaryRecord{
				{Source: "table0.md", Text: "Rent 1200"},
				{Source: "table1.md", Err: &pipeline.UnitError{Source: "table1.md", Err: errors.New("timeout")}},
			},
			Digest:       "File: table0.md\nRent 1200\n\n",
			FinalSummary: "5. Conclusion: Yes",
		},
	}
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.SaveJob(context.Background(), completedJob()))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID       string          `json:"job_id"`
		Status      string          `json:"status"`
		Type        string          `json:"type"`
		Result      pipeline.Result `json:"result"`
		FailedUnits []unitFailure   `json:"failed_units"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "analyze_statement", resp.Type)
	assert.Equal(t, pipeline.FinalSummary("5. Conclusion: Yes"), resp.Result.FinalSummary)
	require.Len(t, resp.FailedUnits, 1)
	assert.Equal(t, "table1.md", resp.FailedUnits[0].Source)
	assert.Contains(t, resp.FailedUnits[0].Error, "timeout")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.SaveJob(ctx, completedJob()))
	require.NoError(t, ts.store.SaveJob(ctx, &jobs.AnalyzeStatementJob{
		JobID: "job-2", Document: "april.pdf", Status: jobs.JobStatusPending, CreatedAt: time.Now(),
	}))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []map[string]any `json:"jobs"`
		Count int              `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "job-2", resp.Jobs[0]["job_id"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/jobs?limit=5", nil))
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.SaveJob(context.Background(), completedJob()))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/chat", strings.NewReader(`{"question":"What is my biggest expense?"}`))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Rent is your largest expense.", resp.Answer)
	require.Len(t, resp.History, 3)
	assert.Equal(t, pipeline.Greeting, resp.History[0].Content)
	assert.Equal(t, pipeline.RoleUser, resp.History[1].Role)

	require.Len(t, ts.prompts, 1)
	assert.Equal(t, "What is my biggest expense?\n\nFile: table0.md\nRent 1200\n\n", ts.prompts[0])

	// The client sends the history back with the next question.
	next, err := json.Marshal(chatRequest{Question: "And income?", History: resp.History})
	require.NoError(t, err)
	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/chat", bytes.NewReader(next)))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Len(t, resp.History, 5)
	assert.Contains(t, ts.prompts[1], "user: What is my biggest expense?")
}

func TestChat_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.SaveJob(ctx, completedJob()))
	require.NoError(t, ts.store.SaveJob(ctx, &jobs.AnalyzeStatementJob{JobID: "job-2", Status: jobs.JobStatusRunning}))

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "unknown job", path: "/api/jobs/nope/chat", body: `{"question":"hi"}`, want: http.StatusNotFound},
		{name: "job not finished", path: "/api/jobs/job-2/chat", body: `{"question":"hi"}`, want: http.StatusConflict},
		{name: "empty question", path: "/api/jobs/job-1/chat", body: `{"question":"  "}`, want: http.StatusBadRequest},
		{name: "bad body", path: "/api/jobs/job-1/chat", body: `not json`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, ts.prompts)
}

func TestRouter_HealthMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodOptions, "/api/statements", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/jobs/job-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
