// Package app wires configuration, analyzers and the batch orchestrator into runnable operations.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/gemini"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/openai"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/retry"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/stub"
	"github.com/shpitdev/review-insight-pipeline/internal/batch"
	"github.com/shpitdev/review-insight-pipeline/internal/config"
	"github.com/shpitdev/review-insight-pipeline/internal/export"
	"github.com/shpitdev/review-insight-pipeline/internal/metrics"
	"github.com/shpitdev/review-insight-pipeline/internal/table"
)

// NewAnalyzer builds the configured backend, instruments it (when rec is non-nil) and wraps it with retries.
// Instrumentation sits inside the retry wrapper so every attempt is counted.
func NewAnalyzer(ctx context.Context, cfg config.Config, logger *slog.Logger, rec *metrics.Recorder) (analyzer.Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var base analyzer.Analyzer
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("analyzer ready", "provider", cfg.Provider, "model", g.Model())
		base = g
	case config.ProviderOpenAI:
		o, err := openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("analyzer ready", "provider", cfg.Provider, "model", o.Model())
		base = o
	case config.ProviderStub:
		logger.Info("analyzer ready", "provider", cfg.Provider)
		base = stub.New()
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.Provider)
	}

	if rec != nil {
		base = rec.Instrument(base)
	}
	opts := cfg.RetryOptions()
	opts.Logger = logger
	return retry.Wrap(base, opts), nil
}

// LocalOptions configures RunLocal.
type LocalOptions struct {
	InputPath  string
	OutputPath string
	// XLSXPath, if set, also writes the workbook rendition.
	XLSXPath string

	Language analyzer.Language
	MinWords int

	Logger   *slog.Logger
	Observer batch.Observer
}

// RunLocal reads a local review CSV, analyzes every row and writes the output CSV.
// Input problems abort before any analyzer call; row failures only show up in the output.
func RunLocal(ctx context.Context, opts LocalOptions, a analyzer.Analyzer) (*batch.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	runStart := time.Now()

	tbl, err := readTable(opts.InputPath)
	if err != nil {
		return nil, err
	}
	logger.Info("batch start",
		"input", opts.InputPath,
		"rows", tbl.Len(),
		"review_column", tbl.ReviewColumn(),
		"language", opts.Language.String(),
	)

	progress := &progressLog{logger: logger, total: tbl.Len()}
	res, err := batch.Run(ctx, tbl, a, batch.Options{
		Language: opts.Language,
		MinWords: opts.MinWords,
		Observer: batch.Observers{progress, opts.Observer},
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if err := writeFile(opts.OutputPath, func(f *os.File) error { return res.WriteCSV(f) }); err != nil {
		return nil, err
	}
	if opts.XLSXPath != "" {
		if err := writeFile(opts.XLSXPath, func(f *os.File) error { return export.WriteXLSX(f, res) }); err != nil {
			return nil, err
		}
	}

	logger.Info("batch done",
		"output", opts.OutputPath,
		"positive", res.Aggregate.Positive,
		"negative", res.Aggregate.Negative,
		"neutral", res.Aggregate.Neutral,
		"failed", res.Aggregate.Failed,
		"skipped", res.Skipped,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return res, nil
}

func readTable(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &table.IOError{Op: "open input", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()
	return table.Read(f)
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return &table.IOError{Op: "create output", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()
	if err := write(f); err != nil {
		return &table.IOError{Op: "write output", Err: err}
	}
	if err := f.Close(); err != nil {
		return &table.IOError{Op: "close output", Err: err}
	}
	return nil
}

// progressLog logs roughly every tenth of the batch.
type progressLog struct {
	logger *slog.Logger
	total  int
	next   int
}

func (p *progressLog) RowDone(index int, o batch.Outcome) {
	done := index + 1
	if done < p.next && done != p.total {
		return
	}
	p.logger.Info("progress", "processed", done, "total", p.total, "last_status", o.Status.String())
	step := p.total / 10
	if step < 1 {
		step = 1
	}
	p.next = done + step
}
