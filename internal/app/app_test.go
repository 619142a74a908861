package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/stub"
	"github.com/shpitdev/review-insight-pipeline/internal/app"
	"github.com/shpitdev/review-insight-pipeline/internal/config"
	"github.com/shpitdev/review-insight-pipeline/internal/metrics"
	"github.com/shpitdev/review-insight-pipeline/internal/mockgemini"
	"github.com/shpitdev/review-insight-pipeline/internal/table"
)

const (
	goodReview = "Great kettle, I love it. The design is excellent and it heats water fast, which is perfect for my morning tea routine every single day."
	badReview  = "Terrible experience overall. The delivery was late, the box arrived damaged and the support staff were rude when I asked for a refund."
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeInput(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(content), 0o600))
	return in, filepath.Join(dir, "out.csv")
}

func TestRunLocal_Stub(t *testing.T) {
	in, out := writeInput(t, "id,Review\n1,\""+goodReview+"\"\n2,\""+badReview+"\"\n3,short\n")
	xlsx := filepath.Join(filepath.Dir(out), "out.xlsx")

	res, err := app.RunLocal(context.Background(), app.LocalOptions{
		InputPath:  in,
		OutputPath: out,
		XLSXPath:   xlsx,
		Logger:     quiet(),
	}, stub.New())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.Positive)
	assert.Equal(t, 1, res.Aggregate.Negative)
	assert.Equal(t, 1, res.Skipped)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	back, err := table.Parse(string(b))
	require.NoError(t, err)
	assert.Equal(t, res.Header, back.Header())
	require.Equal(t, 3, back.Len())
	status, _ := back.Rows()[2].Get("llm_error_details")
	assert.Equal(t, "Skipped: Review too short.", status)

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestRunLocal_MissingInputIsIOError(t *testing.T) {
	_, err := app.RunLocal(context.Background(), app.LocalOptions{
		InputPath:  filepath.Join(t.TempDir(), "nope.csv"),
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
		Logger:     quiet(),
	}, stub.New())
	var ioErr *table.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type countingAnalyzer struct {
	stub.Analyzer
	calls int
}

func (c *countingAnalyzer) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	c.calls++
	return c.Analyzer.Sentiment(ctx, req)
}

func TestRunLocal_SchemaErrorBeforeAnyCall(t *testing.T) {
	in, out := writeInput(t, "comment,rating\n\""+goodReview+"\",5\n")
	a := &countingAnalyzer{}

	_, err := app.RunLocal(context.Background(), app.LocalOptions{InputPath: in, OutputPath: out, Logger: quiet()}, a)
	var schemaErr *table.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Zero(t, a.calls)
	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no output on schema error")
}

func TestRunLocal_UnwritableOutput(t *testing.T) {
	in, _ := writeInput(t, "review\n\""+goodReview+"\"\n")
	_, err := app.RunLocal(context.Background(), app.LocalOptions{
		InputPath:  in,
		OutputPath: filepath.Join(t.TempDir(), "missing-dir", "out.csv"),
		Logger:     quiet(),
	}, stub.New())
	var ioErr *table.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestNewAnalyzer_GeminiAgainstMock(t *testing.T) {
	srv := mockgemini.New()
	srv.RequireAPIKey("test-key")
	srv.FailNext(1, http.StatusServiceUnavailable)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := config.Default()
	cfg.Gemini.APIKey = "test-key"
	cfg.Gemini.BaseURL = ts.URL
	cfg.Retry.BaseDelay = time.Millisecond
	require.NoError(t, cfg.Validate())

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	a, err := app.NewAnalyzer(context.Background(), cfg, quiet(), rec)
	require.NoError(t, err)

	in, out := writeInput(t, "text\n\""+goodReview+"\"\n")
	res, err := app.RunLocal(context.Background(), app.LocalOptions{InputPath: in, OutputPath: out, Logger: quiet(), Observer: rec}, a)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.Positive, "outcomes=%+v", res.Outcomes)

	// one injected 503 plus three successful calls
	assert.Len(t, srv.Calls(), 4)

	var buf bytes.Buffer
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		buf.WriteString(mf.GetName() + "\n")
	}
	assert.True(t, strings.Contains(buf.String(), "review_rows_total"))
}

func TestNewAnalyzer_PermissionFailureRecordedAsRowFailure(t *testing.T) {
	srv := mockgemini.New()
	srv.RequireAPIKey("right-key")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := config.Default()
	cfg.Gemini.APIKey = "wrong-key"
	cfg.Gemini.BaseURL = ts.URL
	cfg.Retry.BaseDelay = time.Millisecond

	a, err := app.NewAnalyzer(context.Background(), cfg, quiet(), nil)
	require.NoError(t, err)

	in, out := writeInput(t, "review\n\""+goodReview+"\"\n")
	res, err := app.RunLocal(context.Background(), app.LocalOptions{InputPath: in, OutputPath: out, Logger: quiet()}, a)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.Failed)
	assert.Equal(t, analyzer.PermissionMessage, res.Outcomes[0].Details)
	// permission failures are not retried; siblings may be cancelled before they are sent
	for _, op := range []mockgemini.Op{mockgemini.OpSentiment, mockgemini.OpSummary, mockgemini.OpAspects} {
		assert.LessOrEqual(t, len(srv.CallsFor(op)), 1, "op %s", op)
	}
	assert.NotEmpty(t, srv.Calls())
}

func TestNewAnalyzer_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "bard"
	_, err := app.NewAnalyzer(context.Background(), cfg, quiet(), nil)
	assert.Error(t, err)
}
