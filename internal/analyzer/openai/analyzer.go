// Package openai implements analyzer.Analyzer on any OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
)

const DefaultModel = openai.GPT4oMini

// chatClient is the subset of *openai.Client the analyzer calls.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API base URL (e.g. a local OpenAI-compatible server).
	BaseURL string

	Logger *slog.Logger
}

type Analyzer struct {
	client chatClient
	model  string
	log    *slog.Logger
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

func New(cfg Config) (*Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oc.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	return newWithClient(openai.NewClientWithConfig(oc), cfg), nil
}

func newWithClient(client chatClient, cfg Config) *Analyzer {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, model: model, log: logger}
}

// Model returns the model name requests are sent to.
func (a *Analyzer) Model() string { return a.model }

// JSON-object mode cannot constrain the shape, so the shape is spelled out in the system prompt.
const (
	sentimentShape = ` Respond with a JSON object {"sentiment": "POSITIVE"|"NEGATIVE"|"NEUTRAL", "confidence_score": number between 0.0 and 1.0}.`
	aspectsShape   = ` Respond with a JSON object {"aspects": [{"topic": string, "sentiment": "POSITIVE"|"NEGATIVE"|"NEUTRAL"}]}.`
)

func (a *Analyzer) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	text, err := a.complete(ctx, analyzer.SentimentPrompt(req), sentimentShape)
	if err != nil {
		return analyzer.Sentiment{}, err
	}
	if text == "" {
		return analyzer.Sentiment{}, errors.New("openai: could not extract sentiment JSON from response")
	}
	s, err := analyzer.DecodeSentiment(text)
	if err != nil {
		return analyzer.Sentiment{}, fmt.Errorf("openai: %w", err)
	}
	return s, nil
}

func (a *Analyzer) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	text, err := a.complete(ctx, analyzer.SummaryPrompt(req), "")
	if err != nil {
		return "", err
	}
	if text == "" {
		return analyzer.NoSummary, nil
	}
	return text, nil
}

func (a *Analyzer) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	text, err := a.complete(ctx, analyzer.AspectsPrompt(req), aspectsShape)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.New("openai: could not extract aspects JSON from response")
	}
	aspects, err := analyzer.DecodeAspects(unwrapAspects(text))
	if errors.Is(err, analyzer.ErrMalformedJSON) {
		a.log.Warn("unparseable aspects response, using empty list", "model", a.model, "err", err)
		return []analyzer.Aspect{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return aspects, nil
}

func (a *Analyzer) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	text, err := a.complete(ctx, analyzer.ReplyPrompt(req, prior), "")
	if err != nil {
		return "", err
	}
	if text == "" {
		return analyzer.NoReplyDraft, nil
	}
	return text, nil
}

// unwrapAspects accepts {"aspects": [...]} or a bare array.
func unwrapAspects(text string) string {
	text = analyzer.StripFences(text)
	if !strings.HasPrefix(text, "{") {
		return text
	}
	var wrapped struct {
		Aspects json.RawMessage `json:"aspects"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil || len(wrapped.Aspects) == 0 {
		return text
	}
	return string(wrapped.Aspects)
}

func (a *Analyzer) complete(ctx context.Context, p analyzer.Prompt, shape string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System + shape},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	}
	if p.Structured {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return analyzer.ClassifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return analyzer.ClassifyStatus(reqErr.HTTPStatusCode, err)
	}
	return analyzer.ClassifyNetwork(err)
}
