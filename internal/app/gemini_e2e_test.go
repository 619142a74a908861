//go:build gemini_e2e

package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shpitdev/review-insight-pipeline/internal/app"
	"github.com/shpitdev/review-insight-pipeline/internal/batch"
	"github.com/shpitdev/review-insight-pipeline/internal/config"
)

func TestRunLocal_RealGemini_EndToEnd(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Fatalf("GEMINI_API_KEY is required for gemini_e2e tests")
	}

	ctx := context.Background()

	baseDir := t.TempDir()
	if artifactDir := os.Getenv("GEMINI_E2E_ARTIFACT_DIR"); artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0755); err != nil {
			t.Fatalf("create GEMINI_E2E_ARTIFACT_DIR: %v", err)
		}
		baseDir = artifactDir
	}

	// Synthetic reviews only (public repo); we just validate API/schema assumptions.
	in := "review,rating\n" +
		"\"I ordered the blue kettle last month and it boils water quickly, looks great on the counter, and the handle stays cool, so I am very happy with it\",5\n" +
		"\"The headphones stopped charging after a week, support never answered my emails, and the replacement arrived with a cracked case, which is very disappointing\",1\n" +
		"meh,3\n"

	cfg := config.Default()
	cfg.Gemini.APIKey = apiKey
	if m := os.Getenv("GEMINI_MODEL"); m != "" {
		cfg.Gemini.Model = m
	}
	cfg.Gemini.BaseURL = os.Getenv("GEMINI_BASE_URL")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	a, err := app.NewAnalyzer(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatalf("create analyzer: %v", err)
	}

	inputPath := filepath.Join(baseDir, "reviews.csv")
	outputPath := filepath.Join(baseDir, "reviews_analyzed.csv")
	if err := os.WriteFile(inputPath, []byte(in), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	res, err := app.RunLocal(ctx, app.LocalOptions{
		InputPath:  inputPath,
		OutputPath: outputPath,
		XLSXPath:   filepath.Join(baseDir, "reviews_analyzed.xlsx"),
		Language:   cfg.LanguageValue(),
	}, a)
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}
	if res.Aggregate.Failed != 0 {
		t.Fatalf("expected no failed rows, got %+v (outcomes=%+v)", res.Aggregate, res.Outcomes)
	}
	if res.Aggregate.Total() != 2 || res.Skipped != 1 {
		t.Fatalf("expected 2 analyzed + 1 skipped, got %+v skipped=%d", res.Aggregate, res.Skipped)
	}

	b, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("parse output csv: %v", err)
	}
	if len(records) != 1+3 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	for i := 1; i <= 2; i++ {
		if got := records[i][len(records[i])-1]; got != batch.SuccessDetails {
			t.Fatalf("row[%d] expected %s, got %#v", i, batch.SuccessDetails, records[i])
		}
	}
	if got := records[3][len(records[3])-1]; got != batch.SkipDetails {
		t.Fatalf("row[3] expected skip, got %#v", records[3])
	}
}
