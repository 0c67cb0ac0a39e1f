package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

const (
	// DefaultLlamaParseURL is the hosted LlamaParse API.
	DefaultLlamaParseURL = "https://api.cloud.llamaindex.ai"

	defaultPollInterval = 2 * time.Second
)

// ErrParseJobFailed is returned when LlamaParse reports a terminal failure.
var ErrParseJobFailed = errors.New("llamaparse: job failed")

// LlamaParse converts documents with the LlamaParse API: upload, poll the
// job until it finishes, then fetch the per-page markdown.
type LlamaParse struct {
	baseURL      string
	apiKey       string
	premium      bool
	pollInterval time.Duration
	httpClient   *http.Client
}

// LlamaParseOption configures a LlamaParse client.
type LlamaParseOption func(*LlamaParse)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) LlamaParseOption {
	return func(p *LlamaParse) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithPremium enables premium parsing mode.
func WithPremium(premium bool) LlamaParseOption {
	return func(p *LlamaParse) { p.premium = premium }
}

// WithPollInterval sets the delay between job status checks.
func WithPollInterval(d time.Duration) LlamaParseOption {
	return func(p *LlamaParse) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) LlamaParseOption {
	return func(p *LlamaParse) { p.httpClient = c }
}

// NewLlamaParse creates a client authenticated with apiKey.
func NewLlamaParse(apiKey string, opts ...LlamaParseOption) *LlamaParse {
	p := &LlamaParse{
		baseURL:      DefaultLlamaParseURL,
		apiKey:       apiKey,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type llamaJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message,omitempty"`
}

type llamaResult struct {
	Pages []struct {
		Page int    `json:"page"`
		MD   string `json:"md"`
	} `json:"pages"`
}

func (p *LlamaParse) Convert(ctx context.Context, doc Document) ([]Page, error) {
	log := logger.FromContext(ctx)

	job, err := p.upload(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("LlamaParse.Convert: upload %s: %w", doc.Name, err)
	}
	log.Info().Str("job_id", job.ID).Str("document", doc.Name).Msg("llamaparse job submitted")

	if err := p.wait(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("LlamaParse.Convert: job %s: %w", job.ID, err)
	}

	var result llamaResult
	if err := p.getJSON(ctx, "/api/parsing/job/"+job.ID+"/result/json", &result); err != nil {
		return nil, fmt.Errorf("LlamaParse.Convert: fetch result %s: %w", job.ID, err)
	}

	pages := make([]Page, 0, len(result.Pages))
	for i, pg := range result.Pages {
		n := pg.Page
		if n == 0 {
			n = i + 1
		}
		pages = append(pages, Page{Number: n, Markdown: pg.MD})
	}
	log.Info().Str("job_id", job.ID).Int("pages", len(pages)).Msg("llamaparse job complete")
	return pages, nil
}

func (p *LlamaParse) upload(ctx context.Context, doc Document) (*llamaJob, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	mimeType := doc.MIMEType
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.WriteField("result_type", "markdown"); err != nil {
		return nil, fmt.Errorf("write result_type: %w", err)
	}
	if p.premium {
		if err := mw.WriteField("premium_mode", "true"); err != nil {
			return nil, fmt.Errorf("write premium_mode: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/parsing/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var job llamaJob
	if err := p.do(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, errors.New("upload response has no job id")
	}
	return &job, nil
}

func (p *LlamaParse) wait(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		var job llamaJob
		if err := p.getJSON(ctx, "/api/parsing/job/"+jobID, &job); err != nil {
			return err
		}

		switch job.Status {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELED", "CANCELLED":
			return fmt.Errorf("%w: status %s: %s", ErrParseJobFailed, job.Status, job.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *LlamaParse) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return p.do(req, out)
}

func (p *LlamaParse) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(string(body), 300))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
