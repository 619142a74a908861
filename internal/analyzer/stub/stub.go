// Package stub is a deterministic, offline analyzer.Analyzer driven by a small word lexicon.
// It backs dry runs, the mock Gemini server and tests.
package stub

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
)

var positiveWords = map[string]bool{
	"amazing": true, "awesome": true, "best": true, "comfortable": true, "excellent": true,
	"fast": true, "fantastic": true, "friendly": true, "good": true, "great": true,
	"happy": true, "helpful": true, "love": true, "loved": true, "nice": true,
	"perfect": true, "quick": true, "recommend": true, "reliable": true, "sturdy": true,
	"wonderful": true,
}

var negativeWords = map[string]bool{
	"awful": true, "bad": true, "broke": true, "broken": true, "cheap": true,
	"damaged": true, "defective": true, "disappointed": true, "disappointing": true, "expensive": true,
	"flimsy": true, "hate": true, "late": true, "poor": true, "refund": true,
	"rude": true, "slow": true, "terrible": true, "useless": true, "worst": true,
	"wrong": true,
}

// topics maps a lexicon keyword to the aspect it reports.
var topics = []struct {
	keyword string
	topic   string
}{
	{"battery", "battery"},
	{"screen", "screen"},
	{"display", "screen"},
	{"price", "price"},
	{"cost", "price"},
	{"delivery", "delivery"},
	{"shipping", "delivery"},
	{"arrived", "delivery"},
	{"service", "customer service"},
	{"support", "customer service"},
	{"staff", "customer service"},
	{"quality", "build quality"},
	{"build", "build quality"},
	{"packaging", "packaging"},
	{"size", "fit"},
	{"fit", "fit"},
	{"design", "design"},
	{"sound", "sound"},
	{"camera", "camera"},
	{"performance", "performance"},
	{"food", "food"},
	{"taste", "food"},
}

const maxAspects = 5

// Analyzer is stateless and safe for concurrent use.
type Analyzer struct{}

var _ analyzer.Analyzer = Analyzer{}

func New() Analyzer { return Analyzer{} }

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func score(s string) (pos, neg int) {
	for _, w := range words(s) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	return pos, neg
}

func classify(pos, neg int) analyzer.Label {
	switch {
	case pos > neg:
		return analyzer.Positive
	case neg > pos:
		return analyzer.Negative
	}
	return analyzer.Neutral
}

// Classify scores text against the lexicon.
func Classify(text string) analyzer.Sentiment {
	pos, neg := score(text)
	conf := 0.5
	if total := pos + neg; total > 0 {
		conf = 0.5 + 0.5*math.Abs(float64(pos-neg))/float64(total)
	}
	return analyzer.Sentiment{Label: classify(pos, neg), Confidence: conf}
}

func (Analyzer) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return analyzer.Sentiment{}, err
	}
	return Classify(req.Review), nil
}

// Summarize returns the first two sentences of text, capped at 40 words.
func Summarize(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	out := strings.Fields(strings.Join(sentences, " "))
	if len(out) > 40 {
		out = append(out[:40:40], "...")
	}
	return strings.Join(out, " ")
}

func (Analyzer) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s := Summarize(req.Review); s != "" {
		return s, nil
	}
	return analyzer.NoSummary, nil
}

// ExtractAspects finds up to five known topics; each takes the sentiment of the sentence mentioning it.
func ExtractAspects(text string) []analyzer.Aspect {
	out := []analyzer.Aspect{}
	seen := map[string]bool{}
	for _, sentence := range splitSentences(text) {
		ws := map[string]bool{}
		for _, w := range words(sentence) {
			ws[w] = true
		}
		label := classify(score(sentence))
		for _, t := range topics {
			if !ws[t.keyword] || seen[t.topic] {
				continue
			}
			seen[t.topic] = true
			out = append(out, analyzer.Aspect{Topic: t.topic, Sentiment: label})
			if len(out) == maxAspects {
				return out
			}
		}
	}
	return out
}

func (Analyzer) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ExtractAspects(req.Review), nil
}

// Reply drafts a canned customer-service reply for the prior sentiment.
func Reply(text string, prior analyzer.Label) string {
	if prior == analyzer.Positive {
		return "Thank you so much for your kind review! We are thrilled you had a great experience and look forward to serving you again."
	}
	issue := "the issue you described"
	if as := ExtractAspects(text); len(as) > 0 {
		issue = fmt.Sprintf("the problem with the %s", as[0].Topic)
	}
	return fmt.Sprintf("We are sorry your experience fell short. We are looking into %s and will make it right. Please contact our support team so we can help directly.", issue)
}

func (Analyzer) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Reply(req.Review, prior), nil
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			flush(i + 1)
		}
	}
	flush(len(text))
	return out
}
