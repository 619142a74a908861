// Package server exposes batch progress, results and single-review analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/batch"
	"github.com/shpitdev/review-insight-pipeline/internal/export"
	"github.com/shpitdev/review-insight-pipeline/internal/metrics"
	"github.com/shpitdev/review-insight-pipeline/internal/redact"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
	"github.com/shpitdev/review-insight-pipeline/internal/table"
)

// MaxUploadBytes bounds the CSV body accepted by POST /v1/batches.
const MaxUploadBytes = 32 << 20

// Batch states.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
)

type Config struct {
	Analyzer analyzer.Analyzer
	// Metrics is optional. Gatherer backs /metrics when set.
	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer

	Language analyzer.Language
	MinWords int
	Logger   *slog.Logger
}

// Server owns the in-memory batch store. Accepted batches wait in their own goroutine
// and run one at a time, so at most three analyzer calls are in flight for batches.
type Server struct {
	cfg Config

	// slot admits one batch.Run at a time.
	slot chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	id      string
	total   int
	tracker *batch.Tracker

	mu     sync.Mutex
	state  string
	result *batch.Result
	err    string
	xlsx   []byte
}

// Status is the JSON view of a batch.
type Status struct {
	ID        string           `json:"id"`
	State     string           `json:"state"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Aggregate *batch.Aggregate `json:"aggregate,omitempty"`
	Skipped   int              `json:"skipped"`
	Error     string           `json:"error,omitempty"`
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = analyzer.DefaultLanguage
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = review.MinWords
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		slot:   make(chan struct{}, 1),
		jobs:   make(map[string]*job),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	mux.HandleFunc("GET /v1/batches/{id}", s.handleBatchStatus)
	mux.HandleFunc("GET /v1/batches/{id}/result.csv", s.handleResultCSV)
	mux.HandleFunc("GET /v1/batches/{id}/result.xlsx", s.handleResultXLSX)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/reply", s.handleReply)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.cfg.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.cfg.Gatherer))
	}
	return mux
}

// Close cancels running batches and waits for them to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every accepted batch has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves on addr until ctx is done, then shuts down and cancels running batches.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.ListenAndServe()
	}()
	s.cfg.Logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := hs.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	lang := s.cfg.Language
	if raw := r.URL.Query().Get("language"); raw != "" {
		l, err := analyzer.ParseLanguage(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		lang = l
	}

	tbl, err := table.Read(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j := &job{
		id:      uuid.NewString(),
		total:   tbl.Len(),
		tracker: &batch.Tracker{},
		state:   StatePending,
	}
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(j, tbl, lang)

	writeJSON(w, http.StatusAccepted, map[string]any{"id": j.id, "total": j.total})
}

func (s *Server) run(j *job, tbl *table.Table, lang analyzer.Language) {
	defer s.wg.Done()
	logger := s.cfg.Logger.With("batch_id", j.id)
	logger.Info("batch accepted", "rows", j.total, "language", lang.String())

	var observer batch.Observer
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BatchStarted()
		observer = s.cfg.Metrics
	}

	var (
		res  *batch.Result
		xlsx []byte
	)
	err := s.acquire()
	if err == nil {
		// Released only after the final state is recorded.
		defer s.release()
		res, xlsx, err = s.execute(j, tbl, lang, observer, logger)
	}

	state := StateSucceeded
	switch {
	case errors.Is(err, context.Canceled):
		state = StateCanceled
	case err != nil:
		state = StateFailed
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BatchFinished(metricState(state))
	}

	j.mu.Lock()
	j.state = state
	if err != nil {
		j.err = redact.Secrets(err.Error())
	} else {
		j.result = res
		j.xlsx = xlsx
	}
	j.mu.Unlock()

	if err != nil {
		logger.Warn("batch stopped", "state", state, "err", redact.Secrets(err.Error()))
		return
	}
	logger.Info("batch done",
		"positive", res.Aggregate.Positive,
		"negative", res.Aggregate.Negative,
		"neutral", res.Aggregate.Neutral,
		"failed", res.Aggregate.Failed,
		"skipped", res.Skipped,
	)
}

// acquire waits for the batch slot or server shutdown.
func (s *Server) acquire() error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Server) release() { <-s.slot }

// execute runs the batch and renders the workbook. The caller holds the slot.
func (s *Server) execute(j *job, tbl *table.Table, lang analyzer.Language, observer batch.Observer, logger *slog.Logger) (*batch.Result, []byte, error) {
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()
	logger.Debug("batch running")

	res, err := batch.Run(s.ctx, tbl, s.cfg.Analyzer, batch.Options{
		Language: lang,
		MinWords: s.cfg.MinWords,
		Tracker:  j.tracker,
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	xlsx, err := export.XLSX(res)
	if err != nil {
		return nil, nil, err
	}
	return res, xlsx, nil
}

func metricState(state string) string {
	switch state {
	case StateSucceeded:
		return metrics.BatchSucceeded
	case StateCanceled:
		return metrics.BatchCanceled
	}
	return metrics.BatchFailed
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*job, bool) {
	id := r.PathValue("id")
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown batch")
	}
	return j, ok
}

func (j *job) status() Status {
	p := j.tracker.Progress()
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{
		ID:        j.id,
		State:     j.state,
		Processed: p.Processed,
		Total:     j.total,
		Error:     j.err,
	}
	if j.result != nil {
		agg := j.result.Aggregate
		st.Aggregate = &agg
		st.Skipped = j.result.Skipped
	}
	return st
}

// done returns the result once the batch succeeded.
func (j *job) done() (*batch.Result, []byte, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.xlsx, j.state
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, j.status())
}

func (s *Server) handleResultCSV(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, _, state := j.done()
	if res == nil {
		writeError(w, http.StatusConflict, "batch is "+state)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reviews_analyzed.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := res.WriteCSV(w); err != nil {
		s.cfg.Logger.Warn("write csv response", "batch_id", j.id, "err", err)
	}
}

func (s *Server) handleResultXLSX(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, xlsx, state := j.done()
	if res == nil {
		writeError(w, http.StatusConflict, "batch is "+state)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="reviews_analyzed.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

type analyzeRequest struct {
	Review    string `json:"review"`
	Language  string `json:"language"`
	Sentiment string `json:"sentiment,omitempty"`
}

// AspectJSON is one aspect in an analysis response.
type AspectJSON struct {
	Topic     string `json:"topic"`
	Sentiment string `json:"sentiment"`
}

// AnalysisJSON is the response body of POST /v1/analyze.
type AnalysisJSON struct {
	Sentiment  string       `json:"sentiment"`
	Confidence float64      `json:"confidence"`
	Summary    string       `json:"summary"`
	Topics     []string     `json:"topics"`
	Aspects    []AspectJSON `json:"aspects"`
}

// NewAnalysisJSON converts an analysis to its response shape.
func NewAnalysisJSON(a review.Analysis) AnalysisJSON {
	out := AnalysisJSON{
		Sentiment:  string(a.Sentiment.Label),
		Confidence: a.Sentiment.Confidence,
		Summary:    a.Summary,
		Topics:     a.Topics(),
		Aspects:    make([]AspectJSON, 0, len(a.Aspects)),
	}
	for _, as := range a.Aspects {
		out.Aspects = append(out.Aspects, AspectJSON{Topic: as.Topic, Sentiment: string(as.Sentiment)})
	}
	return out
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, analyzer.Request, bool) {
	var body analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return body, analyzer.Request{}, false
	}
	lang := s.cfg.Language
	if body.Language != "" {
		l, err := analyzer.ParseLanguage(body.Language)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return body, analyzer.Request{}, false
		}
		lang = l
	}
	return body, analyzer.Request{Review: body.Review, Language: lang}, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	_, req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	a, err := review.AnalyzeSingle(r.Context(), s.cfg.Analyzer, req, s.cfg.MinWords)
	if err != nil {
		s.writeAnalyzerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAnalysisJSON(a))
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	body, req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if !review.Admit(req.Review, s.cfg.MinWords) {
		s.writeAnalyzerError(w, review.ErrTooShort)
		return
	}

	var prior analyzer.Label
	if body.Sentiment != "" {
		l, err := analyzer.ParseLabel(body.Sentiment)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		prior = l
	} else {
		sent, err := s.cfg.Analyzer.Sentiment(r.Context(), req)
		if err != nil {
			s.writeAnalyzerError(w, err)
			return
		}
		prior = sent.Label
	}

	reply, err := review.DraftReply(r.Context(), s.cfg.Analyzer, req, prior, s.cfg.MinWords)
	if err != nil {
		s.writeAnalyzerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply, "sentiment": string(prior)})
}

func (s *Server) writeAnalyzerError(w http.ResponseWriter, err error) {
	msg := redact.Secrets(err.Error())
	switch {
	case errors.Is(err, review.ErrTooShort):
		writeError(w, http.StatusUnprocessableEntity, msg)
	case analyzer.IsPermission(err):
		writeError(w, http.StatusForbidden, msg)
	default:
		s.cfg.Logger.Warn("analyzer request failed", "err", msg)
		writeError(w, http.StatusBadGateway, msg)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
