// Package batch runs the review analysis over every row of a parsed table.
//
// Rows are processed one at a time; each admitted row issues its three analyzer
// calls concurrently, so at most three calls are outstanding. Row failures are
// recorded in that row's outcome and never abort the batch.
package batch

import (
	"context"
	"io"
	"log/slog"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
	"github.com/shpitdev/review-insight-pipeline/internal/table"
)

// Observer is notified after every row, in row order, from the goroutine running the batch.
type Observer interface {
	RowDone(index int, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(index int, o Outcome)

func (f ObserverFunc) RowDone(index int, o Outcome) { f(index, o) }

// Observers fans a row notification out to several observers.
type Observers []Observer

func (os Observers) RowDone(index int, o Outcome) {
	for _, ob := range os {
		if ob != nil {
			ob.RowDone(index, o)
		}
	}
}

type Options struct {
	Language analyzer.Language
	// MinWords is the admission threshold. Defaults to review.MinWords.
	MinWords int

	// Tracker, if set, is updated after every row.
	Tracker  *Tracker
	Observer Observer
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Language == "" {
		o.Language = analyzer.DefaultLanguage
	}
	if o.MinWords <= 0 {
		o.MinWords = review.MinWords
	}
	if o.Tracker == nil {
		o.Tracker = &Tracker{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result is a completed batch.
type Result struct {
	// Header is the input header followed by OutputColumns.
	Header []string
	// Rows holds one output record per input row, in input order.
	Rows      [][]string
	Outcomes  []Outcome
	Aggregate Aggregate
	Skipped   int
}

// Records returns the header followed by every row.
func (r *Result) Records() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, r.Header)
	return append(out, r.Rows...)
}

// CSV renders the output artifact.
func (r *Result) CSV() string {
	return table.Format(r.Header, r.Rows)
}

// WriteCSV writes the output artifact to w.
func (r *Result) WriteCSV(w io.Writer) error {
	return table.Write(w, r.Header, r.Rows)
}

// Run analyzes every row of t and returns exactly one outcome per row.
// It returns an error only when ctx is done before all rows were processed.
func Run(ctx context.Context, t *table.Table, a analyzer.Analyzer, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	rows := t.Rows()
	opts.Tracker.start(len(rows))

	res := &Result{
		Header:   append(t.Header(), OutputColumns...),
		Rows:     make([][]string, 0, len(rows)),
		Outcomes: make([]Outcome, 0, len(rows)),
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			opts.Logger.Warn("batch canceled", "processed", i, "total", len(rows), "err", err)
			return nil, err
		}

		o := analyzeRow(ctx, a, row, opts)
		switch o.Status {
		case StatusSkipped:
			res.Skipped++
			opts.Logger.Debug("row skipped", "row", i, "line", row.Line)
		case StatusFailed:
			opts.Logger.Warn("row analysis failed", "row", i, "line", row.Line, "err", o.Details)
		default:
			opts.Logger.Debug("row analyzed", "row", i, "line", row.Line, "sentiment", o.Sentiment)
		}
		res.Aggregate.record(o)
		res.Outcomes = append(res.Outcomes, o)
		res.Rows = append(res.Rows, append(row.Values(), o.Cells()...))

		opts.Tracker.advance()
		if opts.Observer != nil {
			opts.Observer.RowDone(i, o)
		}
	}
	return res, nil
}

func analyzeRow(ctx context.Context, a analyzer.Analyzer, row table.Row, opts Options) Outcome {
	text := row.Review()
	if !review.Admit(text, opts.MinWords) {
		return skipped()
	}
	analysis, err := review.Analyze(ctx, a, analyzer.Request{Review: text, Language: opts.Language})
	if err != nil {
		return failed(err)
	}
	// Every analyzed row must land in exactly one aggregate bucket.
	label, err := analyzer.ParseLabel(string(analysis.Sentiment.Label))
	if err != nil {
		return failed(err)
	}
	analysis.Sentiment.Label = label
	return succeeded(analysis)
}
