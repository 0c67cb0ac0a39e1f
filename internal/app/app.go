// Package app builds the analyzer and its backends from configuration. It
// is shared by the CLI and the API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/genai"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/config"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/converter"
	infraBQ "github.com/dhruvdixit03/bank-statement-analyzer/internal/infra/bigquery"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/staging"
)

// App holds the wired analyzer and the clients it owns.
type App struct {
	Config   *config.Config
	Analyzer *pipeline.Analyzer
	// Ledger is nil when auditing is disabled.
	Ledger *infraBQ.Ledger

	mu      sync.Mutex
	storage *storage.Client
	closers []func() error
}

// New wires an App from cfg. Close releases everything it opened, also
// when New fails halfway.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	backend, err := llm.NewClient(ctx, cfg.LLMClientConfig())
	if err != nil {
		return nil, fmt.Errorf("New: llm backend: %w", err)
	}
	client := llm.NewResilient(backend, cfg.ResilienceOptions())

	conv, err := a.newConverter(ctx, backend)
	if err != nil {
		return nil, err
	}

	areas := staging.LocalFactory(cfg.Staging.Dir)
	if cfg.Staging.GCSBucket != "" {
		sc, err := a.Storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		areas = staging.GCSFactory(sc, cfg.Staging.GCSBucket)
	}

	var recorder pipeline.RunRecorder
	if cfg.Audit.Enabled() {
		ledger, err := infraBQ.NewLedger(ctx, cfg.Audit.ProjectID, cfg.Audit.Dataset)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, ledger.Close)
		if err := ledger.EnsureTables(ctx); err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.Ledger = ledger
		recorder = ledger
	}

	a.Analyzer = pipeline.NewAnalyzer(pipeline.Deps{
		Converter: conv,
		Client:    client,
		Areas:     areas,
		Recorder:  recorder,
	}, cfg.AnalyzerConfig())
	return a, nil
}

func (a *App) newConverter(ctx context.Context, backend llm.Client) (converter.Converter, error) {
	cc := a.Config.Converter
	switch strings.ToLower(cc.Provider) {
	case config.ConverterLocal:
		return converter.NewLocalPDF(), nil
	case config.ConverterLlamaParse:
		return converter.NewLlamaParse(cc.APIKey,
			converter.WithBaseURL(cc.BaseURL),
			converter.WithPremium(cc.Premium),
			converter.WithPollInterval(cc.PollInterval),
		), nil
	case config.ConverterGemini:
		gc, err := a.genaiClient(ctx, backend)
		if err != nil {
			return nil, err
		}
		return converter.NewGemini(gc, cc.Model), nil
	default:
		return nil, fmt.Errorf("newConverter: unknown converter %q", cc.Provider)
	}
}

// genaiClient reuses the Gemini LLM backend when the converter has no key
// of its own.
func (a *App) genaiClient(ctx context.Context, backend llm.Client) (*genai.Client, error) {
	if g, ok := backend.(*llm.Gemini); ok && a.Config.Converter.APIKey == "" {
		return g.GenAI(), nil
	}
	key := a.Config.Converter.APIKey
	if key == "" {
		key = a.Config.LLM.APIKey
	}
	g, err := llm.NewGemini(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("genaiClient: %w", err)
	}
	return g.GenAI(), nil
}

// Storage returns the shared GCS client, creating it on first use.
func (a *App) Storage(ctx context.Context) (*storage.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storage != nil {
		return a.storage, nil
	}
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Storage: creating client: %w", err)
	}
	a.storage = sc
	a.closers = append(a.closers, sc.Close)
	return sc, nil
}

// Document loads a statement from a local path or a gs:// URI.
func (a *App) Document(ctx context.Context, ref string) (converter.Document, error) {
	var sc *storage.Client
	if staging.IsGCSURI(ref) {
		var err error
		if sc, err = a.Storage(ctx); err != nil {
			return converter.Document{}, fmt.Errorf("Document: %w", err)
		}
	}
	data, err := staging.ReadSource(ctx, sc, ref)
	if err != nil {
		return converter.Document{}, fmt.Errorf("Document: %w", err)
	}
	name := staging.FilenameFromRef(ref)
	return converter.Document{Name: name, MIMEType: MIMETypeFor(name), Data: data}, nil
}

// AnalyzeJob is the queue handler for statement analysis jobs. The run's
// Result is stored on the job even when the run fails.
func (a *App) AnalyzeJob(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()
	ctx = logger.WithContext(ctx, log)

	doc := converter.Document{Name: job.Document, MIMEType: job.MIMEType, Data: job.Data}
	if doc.Data == nil && job.Source != "" {
		fetched, err := a.Document(ctx, job.Source)
		if err != nil {
			return &pipeline.StageError{Stage: pipeline.StageConvert, Err: err}
		}
		doc.Data = fetched.Data
		if doc.MIMEType == "" {
			doc.MIMEType = fetched.MIMEType
		}
	}
	if doc.MIMEType == "" || doc.MIMEType == "application/octet-stream" {
		doc.MIMEType = MIMETypeFor(doc.Name)
	}

	result, err := a.Analyzer.Run(ctx, doc)
	job.Result = result
	return err
}

// Close releases the clients New opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// MIMETypeFor guesses a statement's type from its name, defaulting to PDF.
func MIMETypeFor(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/pdf"
}
