package analyzer

import (
	"context"
	"fmt"
	"strings"
)

// Label is a sentiment classification.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Labels lists the closed label set in display order.
var Labels = []Label{Positive, Negative, Neutral}

// ParseLabel normalizes a label (case-insensitive).
func ParseLabel(raw string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(raw)))
	switch l {
	case Positive, Negative, Neutral:
		return l, nil
	}
	return "", fmt.Errorf("unknown sentiment label %q", raw)
}

// Sentiment is the structured sentiment result for one review.
type Sentiment struct {
	Label      Label
	Confidence float64
}

// Aspect is one product/service topic mentioned in a review with its own sentiment.
type Aspect struct {
	Topic     string
	Sentiment Label
}

// Request is the input for every analyzer operation.
type Request struct {
	Review   string
	Language Language
}

// Analyzer is the remote analysis client.
//
// Each call issues one request to the model backend; implementations keep no per-review state.
type Analyzer interface {
	Sentiment(ctx context.Context, req Request) (Sentiment, error)
	Summary(ctx context.Context, req Request) (string, error)
	Aspects(ctx context.Context, req Request) ([]Aspect, error)
	ReplyDraft(ctx context.Context, req Request, prior Label) (string, error)
}

// Op names an analyzer operation in logs and metrics.
type Op string

const (
	OpSentiment Op = "sentiment"
	OpSummary   Op = "summary"
	OpAspects   Op = "aspects"
	OpReply     Op = "reply"
)

const (
	// NoSummary is returned when the model produced no summary text.
	NoSummary = "No summary could be generated."
	// NoReplyDraft is returned when the model produced no reply text.
	NoReplyDraft = "Could not generate a response draft."
)
