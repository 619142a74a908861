package batch

import (
	"fmt"
	"strings"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/redact"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
)

// OutputColumns are appended, in this order, to the input header.
var OutputColumns = []string{
	"llm_sentiment",
	"llm_confidence",
	"llm_summary",
	"llm_topics",
	"llm_aspect_sentiment",
	"llm_error_details",
}

// Status is the routing decision recorded for one row.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

const (
	notApplicable  = "N/A"
	errorCell      = "ERROR"
	skipSummary    = "Review too short or empty"
	SkipDetails    = "Skipped: Review too short."
	failedSummary  = "API analysis failed for this item."
	failedConf     = "0.00"
	SuccessDetails = "SUCCESS"
)

// Outcome holds the six derived cells for one row.
type Outcome struct {
	Status          Status
	Label           analyzer.Label
	Sentiment       string
	Confidence      string
	Summary         string
	Topics          string
	AspectSentiment string
	Details         string
	// Err is the row failure, if any. It never leaves the row.
	Err error
}

// Cells returns the derived cells in OutputColumns order.
func (o Outcome) Cells() []string {
	return []string{o.Sentiment, o.Confidence, o.Summary, o.Topics, o.AspectSentiment, o.Details}
}

func skipped() Outcome {
	return Outcome{
		Status:          StatusSkipped,
		Sentiment:       notApplicable,
		Confidence:      notApplicable,
		Summary:         skipSummary,
		Topics:          notApplicable,
		AspectSentiment: notApplicable,
		Details:         SkipDetails,
	}
}

func succeeded(a review.Analysis) Outcome {
	topics := make([]string, 0, len(a.Aspects))
	pairs := make([]string, 0, len(a.Aspects))
	for _, as := range a.Aspects {
		topics = append(topics, as.Topic)
		pairs = append(pairs, as.Topic+":"+string(as.Sentiment))
	}
	return Outcome{
		Status:          StatusSuccess,
		Label:           a.Sentiment.Label,
		Sentiment:       string(a.Sentiment.Label),
		Confidence:      fmt.Sprintf("%.4f", a.Sentiment.Confidence),
		Summary:         a.Summary,
		Topics:          strings.Join(topics, "; "),
		AspectSentiment: strings.Join(pairs, "; "),
		Details:         SuccessDetails,
	}
}

func failed(err error) Outcome {
	return Outcome{
		Status:          StatusFailed,
		Sentiment:       errorCell,
		Confidence:      failedConf,
		Summary:         failedSummary,
		Topics:          errorCell,
		AspectSentiment: errorCell,
		Details:         Sanitize(err.Error()),
		Err:             err,
	}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Sanitize prepares a failure message for the error column: secrets redacted,
// a leading "Error: " dropped, commas replaced with semicolons and line breaks flattened.
func Sanitize(msg string) string {
	msg = redact.Secrets(msg)
	msg = strings.TrimPrefix(msg, "Error: ")
	msg = strings.ReplaceAll(msg, ",", ";")
	return strings.TrimSpace(lineBreaks.Replace(msg))
}
