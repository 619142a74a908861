// Package review analyzes a single review: admission, the three-way analyzer join and reply drafting.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
)

// MinWords is the default admission threshold.
const MinWords = 20

// ErrTooShort is returned by single-review operations on an inadmissible review.
var ErrTooShort = errors.New("review too short")

func tooShort(minWords int) error {
	return fmt.Errorf("%w: minimum %d words required for analysis", ErrTooShort, minWords)
}

// WordCount returns the number of whitespace-delimited tokens in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Admit reports whether review has at least minWords words.
func Admit(review string, minWords int) bool {
	return WordCount(review) >= minWords
}

// Analysis is the joint result of the three concurrent analyzer calls.
type Analysis struct {
	Sentiment analyzer.Sentiment
	Summary   string
	Aspects   []analyzer.Aspect
}

// Topics returns the aspect topics in order.
func (a Analysis) Topics() []string {
	out := make([]string, 0, len(a.Aspects))
	for _, as := range a.Aspects {
		out = append(out, as.Topic)
	}
	return out
}

// Analyze issues sentiment, summary and aspects concurrently and joins them.
// The first failure cancels the other calls and is returned; partial results are discarded.
func Analyze(ctx context.Context, a analyzer.Analyzer, req analyzer.Request) (Analysis, error) {
	var out Analysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.Sentiment(gctx, req)
		out.Sentiment = s
		return err
	})
	g.Go(func() error {
		s, err := a.Summary(gctx, req)
		out.Summary = s
		return err
	})
	g.Go(func() error {
		as, err := a.Aspects(gctx, req)
		out.Aspects = as
		return err
	})
	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}
	if out.Aspects == nil {
		out.Aspects = []analyzer.Aspect{}
	}
	return out, nil
}

// AnalyzeSingle runs Analyze for the single-review mode, rejecting inadmissible reviews up front.
func AnalyzeSingle(ctx context.Context, a analyzer.Analyzer, req analyzer.Request, minWords int) (Analysis, error) {
	if !Admit(req.Review, minWords) {
		return Analysis{}, tooShort(minWords)
	}
	return Analyze(ctx, a, req)
}

// DraftReply asks for a customer-service reply; prior selects the reply tone.
func DraftReply(ctx context.Context, a analyzer.Analyzer, req analyzer.Request, prior analyzer.Label, minWords int) (string, error) {
	if !Admit(req.Review, minWords) {
		return "", tooShort(minWords)
	}
	return a.ReplyDraft(ctx, req, prior)
}
