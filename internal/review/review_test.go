package review_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
)

type fakeAnalyzer struct {
	sentiment func(context.Context, analyzer.Request) (analyzer.Sentiment, error)
	summary   func(context.Context, analyzer.Request) (string, error)
	aspects   func(context.Context, analyzer.Request) ([]analyzer.Aspect, error)
	reply     func(context.Context, analyzer.Request, analyzer.Label) (string, error)
}

func (f fakeAnalyzer) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	return f.sentiment(ctx, req)
}

func (f fakeAnalyzer) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	return f.summary(ctx, req)
}

func (f fakeAnalyzer) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	return f.aspects(ctx, req)
}

func (f fakeAnalyzer) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	return f.reply(ctx, req, prior)
}

func okAnalyzer() fakeAnalyzer {
	return fakeAnalyzer{
		sentiment: func(context.Context, analyzer.Request) (analyzer.Sentiment, error) {
			return analyzer.Sentiment{Label: analyzer.Positive, Confidence: 0.9}, nil
		},
		summary: func(context.Context, analyzer.Request) (string, error) { return "Good.", nil },
		aspects: func(context.Context, analyzer.Request) ([]analyzer.Aspect, error) {
			return []analyzer.Aspect{{Topic: "price", Sentiment: analyzer.Positive}, {Topic: "size", Sentiment: analyzer.Negative}}, nil
		},
		reply: func(_ context.Context, _ analyzer.Request, prior analyzer.Label) (string, error) {
			return "reply for " + string(prior), nil
		},
	}
}

var longReview = strings.Repeat("word ", review.MinWords)

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, review.WordCount(""))
	assert.Equal(t, 0, review.WordCount(" \t\n "))
	assert.Equal(t, 3, review.WordCount(" one\ttwo\nthree "))
}

func TestAdmit(t *testing.T) {
	assert.True(t, review.Admit(longReview, review.MinWords))
	assert.False(t, review.Admit(strings.Repeat("w ", review.MinWords-1), review.MinWords))
	assert.False(t, review.Admit("", review.MinWords))
}

func TestAnalyzeJoinsThreeCalls(t *testing.T) {
	got, err := review.Analyze(context.Background(), okAnalyzer(), analyzer.Request{Review: longReview})
	require.NoError(t, err)
	assert.Equal(t, analyzer.Positive, got.Sentiment.Label)
	assert.Equal(t, "Good.", got.Summary)
	assert.Equal(t, []string{"price", "size"}, got.Topics())
}

func TestAnalyzeRunsConcurrently(t *testing.T) {
	var inflight, peak atomic.Int32
	enter := func() func() {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return func() { inflight.Add(-1) }
	}
	a := okAnalyzer()
	base := a
	a.sentiment = func(ctx context.Context, r analyzer.Request) (analyzer.Sentiment, error) {
		defer enter()()
		return base.sentiment(ctx, r)
	}
	a.summary = func(ctx context.Context, r analyzer.Request) (string, error) {
		defer enter()()
		return base.summary(ctx, r)
	}
	a.aspects = func(ctx context.Context, r analyzer.Request) ([]analyzer.Aspect, error) {
		defer enter()()
		return base.aspects(ctx, r)
	}

	_, err := review.Analyze(context.Background(), a, analyzer.Request{Review: longReview})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}

func TestAnalyzeFirstFailureCancelsSiblings(t *testing.T) {
	boom := errors.New("summary failed")
	a := okAnalyzer()
	a.summary = func(context.Context, analyzer.Request) (string, error) { return "", boom }
	a.aspects = func(ctx context.Context, _ analyzer.Request) ([]analyzer.Aspect, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	got, err := review.Analyze(context.Background(), a, analyzer.Request{Review: longReview})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, review.Analysis{}, got)
}

func TestAnalyzeNilAspectsBecomeEmpty(t *testing.T) {
	a := okAnalyzer()
	a.aspects = func(context.Context, analyzer.Request) ([]analyzer.Aspect, error) { return nil, nil }

	got, err := review.Analyze(context.Background(), a, analyzer.Request{Review: longReview})
	require.NoError(t, err)
	assert.NotNil(t, got.Aspects)
	assert.Empty(t, got.Topics())
}

func TestAnalyzeSingleRejectsShortReview(t *testing.T) {
	var calls atomic.Int32
	a := okAnalyzer()
	a.sentiment = func(context.Context, analyzer.Request) (analyzer.Sentiment, error) {
		calls.Add(1)
		return analyzer.Sentiment{}, nil
	}

	_, err := review.AnalyzeSingle(context.Background(), a, analyzer.Request{Review: "too short"}, review.MinWords)
	require.ErrorIs(t, err, review.ErrTooShort)
	assert.Contains(t, err.Error(), "minimum 20 words required for analysis")
	assert.Zero(t, calls.Load())
}

func TestAnalyzeSinglePermissionAborts(t *testing.T) {
	a := okAnalyzer()
	a.sentiment = func(context.Context, analyzer.Request) (analyzer.Sentiment, error) {
		return analyzer.Sentiment{}, &analyzer.PermissionError{StatusCode: 403}
	}
	_, err := review.AnalyzeSingle(context.Background(), a, analyzer.Request{Review: longReview}, review.MinWords)
	require.Error(t, err)
	assert.True(t, analyzer.IsPermission(err))
}

func TestDraftReply(t *testing.T) {
	got, err := review.DraftReply(context.Background(), okAnalyzer(), analyzer.Request{Review: longReview}, analyzer.Negative, review.MinWords)
	require.NoError(t, err)
	assert.Equal(t, "reply for NEGATIVE", got)

	_, err = review.DraftReply(context.Background(), okAnalyzer(), analyzer.Request{Review: "short"}, analyzer.Negative, review.MinWords)
	require.ErrorIs(t, err, review.ErrTooShort)
}
