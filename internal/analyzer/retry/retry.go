// Package retry wraps an analyzer.Analyzer with bounded retries, exponential backoff,
// optional per-attempt timeouts and an optional global rate limit.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/redact"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second

	// MaxAttempts is the largest accepted attempt count.
	MaxAttempts        = 10
	// maxBackoffExponent caps the doubling so large attempt indexes cannot overflow.
	maxBackoffExponent = 16
)

type Options struct {
	// MaxAttempts is the total number of attempts per call, including the first.
	MaxAttempts int
	// BaseDelay is the backoff unit: attempt n sleeps BaseDelay*2^n plus up to one BaseDelay of jitter.
	BaseDelay time.Duration
	// RequestTimeout bounds each attempt. Set to <=0 to disable.
	RequestTimeout time.Duration
	// RateLimitRPS is a global limit across all calls through the wrapper. Set to <=0 to disable.
	RateLimitRPS float64

	Logger *slog.Logger
	// Jitter returns a value in [0,1). Defaults to math/rand/v2.
	Jitter func() float64
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxAttempts > MaxAttempts {
		o.MaxAttempts = MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Jitter == nil {
		o.Jitter = rand.Float64
	}
	return o
}

// Backoff returns the sleep after a failed attempt (0-based): base*2^attempt + jitter*base.
// jitter is clamped to [0,1), the exponent to 16, and the result saturates instead of overflowing.
func Backoff(attempt int, base time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	if jitter < 0 || math.IsNaN(jitter) {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = 0.999999
	}
	factor := time.Duration(1) << uint(attempt)
	if base > math.MaxInt64/(factor+1) {
		return math.MaxInt64
	}
	return base*factor + time.Duration(jitter*float64(base))
}

type retrying struct {
	next    analyzer.Analyzer
	opts    Options
	limiter *rate.Limiter
}

// Wrap decorates next so that every operation is retried per opts.
// Permission failures are returned immediately.
func Wrap(next analyzer.Analyzer, opts Options) analyzer.Analyzer {
	opts = opts.withDefaults()
	r := &retrying{next: next, opts: opts}
	if opts.RateLimitRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return r
}

func (r *retrying) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	return do(ctx, r, analyzer.OpSentiment, func(ctx context.Context) (analyzer.Sentiment, error) {
		return r.next.Sentiment(ctx, req)
	})
}

func (r *retrying) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	return do(ctx, r, analyzer.OpSummary, func(ctx context.Context) (string, error) {
		return r.next.Summary(ctx, req)
	})
}

func (r *retrying) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	return do(ctx, r, analyzer.OpAspects, func(ctx context.Context) ([]analyzer.Aspect, error) {
		return r.next.Aspects(ctx, req)
	})
}

func (r *retrying) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	return do(ctx, r, analyzer.OpReply, func(ctx context.Context) (string, error) {
		return r.next.ReplyDraft(ctx, req, prior)
	})
}

func do[T any](ctx context.Context, r *retrying, op analyzer.Op, call func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if r.opts.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		}
		out, err := call(reqCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if analyzer.IsPermission(err) || attempt+1 >= r.opts.MaxAttempts {
			return zero, err
		}

		sleep := Backoff(attempt, r.opts.BaseDelay, r.opts.Jitter())
		r.opts.Logger.Warn("analyzer call failed, retrying",
			"op", string(op),
			"attempt", attempt+1,
			"max_attempts", r.opts.MaxAttempts,
			"delay", sleep,
			"transient", analyzer.IsTransient(err),
			"err", redact.Secrets(err.Error()),
		)
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		}
	}
}
