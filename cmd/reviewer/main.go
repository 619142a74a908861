package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/subosito/gotenv"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/app"
	"github.com/shpitdev/review-insight-pipeline/internal/config"
	"github.com/shpitdev/review-insight-pipeline/internal/logging"
	"github.com/shpitdev/review-insight-pipeline/internal/metrics"
	"github.com/shpitdev/review-insight-pipeline/internal/redact"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
	"github.com/shpitdev/review-insight-pipeline/internal/server"
	"github.com/shpitdev/review-insight-pipeline/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.String())
	case "batch":
		code = runBatch(ctx, os.Args[2:])
	case "analyze":
		code = runAnalyze(ctx, os.Args[2:])
	case "reply":
		code = runReply(ctx, os.Args[2:])
	case "serve":
		code = runServe(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// common holds the flags shared by every command. Flags that were set override env and file values.
type common struct {
	fs *flag.FlagSet

	configPath string
	envFile    string

	provider       string
	language       string
	minWords       int
	geminiModel    string
	geminiBaseURL  string
	openaiModel    string
	openaiBaseURL  string
	maxAttempts    int
	retryBaseDelay string
	requestTimeout string
	rateLimitRPS   float64
	logLevel       string
	logFile        string
}

func newCommon(name string) *common {
	c := &common{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f := c.fs
	f.SetOutput(os.Stderr)
	f.StringVar(&c.configPath, "config", "", "YAML config file")
	f.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded when present (existing env wins)")
	f.StringVar(&c.provider, "provider", "", "Analyzer backend: gemini, openai or stub (env: ANALYZER_PROVIDER)")
	f.StringVar(&c.language, "language", "", "Output language for summaries and replies (env: REVIEW_LANGUAGE)")
	f.IntVar(&c.minWords, "min-words", 0, "Minimum review length in words (env: MIN_WORDS)")
	f.StringVar(&c.geminiModel, "gemini-model", "", "Gemini model name (env: GEMINI_MODEL)")
	f.StringVar(&c.geminiBaseURL, "gemini-base-url", "", "Gemini API base URL override (env: GEMINI_BASE_URL)")
	f.StringVar(&c.openaiModel, "openai-model", "", "OpenAI model name (env: OPENAI_MODEL)")
	f.StringVar(&c.openaiBaseURL, "openai-base-url", "", "OpenAI-compatible base URL (env: OPENAI_BASE_URL)")
	f.IntVar(&c.maxAttempts, "max-attempts", 0, "Attempts per analyzer call (env: MAX_ATTEMPTS)")
	f.StringVar(&c.retryBaseDelay, "retry-base-delay", "", "Backoff base delay, e.g. 1s (env: RETRY_BASE_DELAY)")
	f.StringVar(&c.requestTimeout, "request-timeout", "", "Per-attempt timeout, 0 disables (env: REQUEST_TIMEOUT)")
	f.Float64Var(&c.rateLimitRPS, "rate-limit-rps", 0, "Global analyzer request rate (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	f.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (env: LOG_LEVEL)")
	f.StringVar(&c.logFile, "log-file", "", "Rotated JSON log file (env: LOG_FILE)")
	return c
}

// resolve loads .env, the config file and env, applies explicitly set flags and validates.
func (c *common) resolve() (config.Config, error) {
	if err := gotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load %s: %w", c.envFile, err)
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}

	// Durations go through ApplyEnv so flags and env share one parser.
	overrides := map[string]string{}
	c.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "provider":
			cfg.Provider = strings.ToLower(strings.TrimSpace(c.provider))
		case "language":
			cfg.Language = c.language
		case "min-words":
			cfg.MinWords = c.minWords
		case "gemini-model":
			cfg.Gemini.Model = c.geminiModel
		case "gemini-base-url":
			cfg.Gemini.BaseURL = c.geminiBaseURL
		case "openai-model":
			cfg.OpenAI.Model = c.openaiModel
		case "openai-base-url":
			cfg.OpenAI.BaseURL = c.openaiBaseURL
		case "max-attempts":
			cfg.Retry.MaxAttempts = c.maxAttempts
		case "retry-base-delay":
			overrides["RETRY_BASE_DELAY"] = c.retryBaseDelay
		case "request-timeout":
			overrides["REQUEST_TIMEOUT"] = c.requestTimeout
		case "rate-limit-rps":
			cfg.Retry.RateLimitRPS = c.rateLimitRPS
		case "log-level":
			cfg.Log.Level = c.logLevel
		case "log-file":
			cfg.Log.File = c.logFile
		}
	})
	if len(overrides) > 0 {
		lookup := func(k string) (string, bool) {
			v, ok := overrides[k]
			return v, ok
		}
		if err := cfg.ApplyEnv(lookup); err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup resolves config, builds the logger and the analyzer. A non-zero code means the caller should exit.
func (c *common) setup(ctx context.Context, rec *metrics.Recorder) (config.Config, *slog.Logger, io.Closer, analyzer.Analyzer, int) {
	cfg, err := c.resolve()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return config.Config{}, nil, nil, nil, 2
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logging error: %s\n", redact.Secrets(err.Error()))
		return config.Config{}, nil, nil, nil, 2
	}
	slog.SetDefault(logger)

	a, err := app.NewAnalyzer(ctx, cfg, logger, rec)
	if err != nil {
		_ = closer.Close()
		_, _ = fmt.Fprintf(os.Stderr, "analyzer config error: %s\n", redact.Secrets(err.Error()))
		return config.Config{}, nil, nil, nil, 2
	}
	return cfg, logger, closer, a, 0
}

func runBatch(ctx context.Context, args []string) int {
	c := newCommon("batch")
	var inputPath, outputPath, xlsxPath string
	c.fs.StringVar(&inputPath, "input", "", "Input CSV file path (must include a 'review' or 'text' column)")
	c.fs.StringVar(&outputPath, "output", "", "Output CSV file path")
	c.fs.StringVar(&xlsxPath, "xlsx", "", "Optional XLSX output path")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" || outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "batch requires --input and --output")
		return 2
	}

	cfg, logger, closer, a, code := c.setup(ctx, nil)
	if code != 0 {
		return code
	}
	defer func() {
		_ = closer.Close()
	}()

	if _, err := app.RunLocal(ctx, app.LocalOptions{
		InputPath:  inputPath,
		OutputPath: outputPath,
		XLSXPath:   xlsxPath,
		Language:   cfg.LanguageValue(),
		MinWords:   cfg.MinWords,
		Logger:     logger,
	}, a); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "batch run failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

// reviewText returns the --review flag value, or stdin when it is "-".
func reviewText(flagValue string) (string, error) {
	if flagValue != "-" {
		return flagValue, nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func runAnalyze(ctx context.Context, args []string) int {
	c := newCommon("analyze")
	var text string
	c.fs.StringVar(&text, "review", "", "Review text, or - to read stdin")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	text, err := reviewText(text)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, _, closer, a, code := c.setup(ctx, nil)
	if code != 0 {
		return code
	}
	defer func() {
		_ = closer.Close()
	}()

	res, err := review.AnalyzeSingle(ctx, a, analyzer.Request{Review: text, Language: cfg.LanguageValue()}, cfg.MinWords)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "analyze failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return printJSON(server.NewAnalysisJSON(res))
}

func runReply(ctx context.Context, args []string) int {
	c := newCommon("reply")
	var text, sentiment string
	c.fs.StringVar(&text, "review", "", "Review text, or - to read stdin")
	c.fs.StringVar(&sentiment, "sentiment", "", "Prior sentiment (POSITIVE, NEGATIVE, NEUTRAL); classified when empty")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}
	text, err := reviewText(text)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 2
	}
	var prior analyzer.Label
	if sentiment != "" {
		if prior, err = analyzer.ParseLabel(sentiment); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	cfg, _, closer, a, code := c.setup(ctx, nil)
	if code != 0 {
		return code
	}
	defer func() {
		_ = closer.Close()
	}()

	req := analyzer.Request{Review: text, Language: cfg.LanguageValue()}
	if !review.Admit(text, cfg.MinWords) {
		_, _ = fmt.Fprintf(os.Stderr, "reply failed: %s\n", review.ErrTooShort)
		return 1
	}
	if prior == "" {
		s, err := a.Sentiment(ctx, req)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "reply failed: %s\n", redact.Secrets(err.Error()))
			return 1
		}
		prior = s.Label
	}
	reply, err := review.DraftReply(ctx, a, req, prior, cfg.MinWords)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "reply failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	_, _ = fmt.Fprintln(os.Stdout, reply)
	return 0
}

func runServe(ctx context.Context, args []string) int {
	c := newCommon("serve")
	var addr string
	c.fs.StringVar(&addr, "addr", "", "Listen address (env: SERVER_ADDR)")
	if err := c.fs.Parse(args); err != nil {
		return 2
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	cfg, logger, closer, a, code := c.setup(ctx, rec)
	if code != 0 {
		return code
	}
	defer func() {
		_ = closer.Close()
	}()
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(server.Config{
		Analyzer: a,
		Metrics:  rec,
		Gatherer: reg,
		Language: cfg.LanguageValue(),
		MinWords: cfg.MinWords,
		Logger:   logger,
	})
	logger.Info("starting", "version", version.Current, "provider", cfg.Provider)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `reviewer: LLM review analysis pipeline (%s)

Usage:
  reviewer <command> [flags]

Commands:
  batch    Analyze every review in a local CSV and write the enriched CSV
  analyze  Analyze one review and print JSON
  reply    Draft a customer-service reply for one review
  serve    Run the HTTP API (batches, progress, results, /metrics)
  version  Print the version

Examples:
  reviewer batch --input reviews.csv --output reviews_analyzed.csv --xlsx reviews_analyzed.xlsx
  echo "..." | reviewer analyze --review - --language Spanish
  reviewer batch --provider stub --input reviews.csv --output out.csv

Environment:
  ANALYZER_PROVIDER   gemini (default), openai or stub
  GEMINI_API_KEY      Gemini API key (required for gemini)
  GEMINI_MODEL        Gemini model name
  GEMINI_BASE_URL     Optional base URL override (proxies/testing)
  OPENAI_API_KEY      OpenAI API key (required for openai)
  OPENAI_MODEL        OpenAI model name
  OPENAI_BASE_URL     OpenAI-compatible base URL
  REVIEW_LANGUAGE     Output language (default English)
  MIN_WORDS           Minimum review length in words (default 20)
  MAX_ATTEMPTS        Attempts per analyzer call (default 3)
  RETRY_BASE_DELAY    Backoff base delay (default 1s)
  REQUEST_TIMEOUT     Per-attempt timeout (default 60s)
  RATE_LIMIT_RPS      Global request rate limit, 0 disables
  LOG_LEVEL           debug, info, warn, error
  LOG_FILE            Rotated JSON log file
  SERVER_ADDR         serve listen address (default :8080)

`, version.Current)
}
