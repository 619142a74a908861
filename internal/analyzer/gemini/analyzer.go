// Package gemini implements analyzer.Analyzer on the Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
)

const DefaultModel = "gemini-2.5-flash-preview-09-2025"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	Logger *slog.Logger
}

type Analyzer struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

func New(ctx context.Context, cfg Config) (*Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, model: model, log: logger}, nil
}

// Model returns the model name requests are sent to.
func (a *Analyzer) Model() string { return a.model }

var labelEnum = []string{string(analyzer.Positive), string(analyzer.Negative), string(analyzer.Neutral)}

var sentimentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment": {
			Type:        genai.TypeString,
			Description: "The overall sentiment of the review.",
			Enum:        labelEnum,
		},
		"confidence_score": {
			Type:        genai.TypeNumber,
			Description: "A calculated confidence score (0.0 to 1.0) for the predicted sentiment.",
			Minimum:     genai.Ptr(0.0),
			Maximum:     genai.Ptr(1.0),
		},
	},
	Required:         []string{"sentiment", "confidence_score"},
	PropertyOrdering: []string{"sentiment", "confidence_score"},
}

var aspectsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"topic": {
				Type:        genai.TypeString,
				Description: "A key product aspect or topic discussed.",
			},
			"sentiment": {
				Type:        genai.TypeString,
				Description: "The specific sentiment for this topic.",
				Enum:        labelEnum,
			},
		},
		Required: []string{"topic", "sentiment"},
	},
}

func (a *Analyzer) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	text, err := a.generate(ctx, analyzer.SentimentPrompt(req), sentimentSchema)
	if err != nil {
		return analyzer.Sentiment{}, err
	}
	if text == "" {
		return analyzer.Sentiment{}, errors.New("gemini: could not extract sentiment JSON from response")
	}
	s, err := analyzer.DecodeSentiment(text)
	if err != nil {
		return analyzer.Sentiment{}, fmt.Errorf("gemini: %w", err)
	}
	return s, nil
}

func (a *Analyzer) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	text, err := a.generate(ctx, analyzer.SummaryPrompt(req), nil)
	if err != nil {
		return "", err
	}
	if text == "" {
		return analyzer.NoSummary, nil
	}
	return text, nil
}

func (a *Analyzer) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	text, err := a.generate(ctx, analyzer.AspectsPrompt(req), aspectsSchema)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.New("gemini: could not extract aspects JSON from response")
	}
	aspects, err := analyzer.DecodeAspects(text)
	if errors.Is(err, analyzer.ErrMalformedJSON) {
		a.log.Warn("unparseable aspects response, using empty list", "model", a.model, "err", err)
		return []analyzer.Aspect{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return aspects, nil
}

func (a *Analyzer) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	text, err := a.generate(ctx, analyzer.ReplyPrompt(req, prior), nil)
	if err != nil {
		return "", err
	}
	if text == "" {
		return analyzer.NoReplyDraft, nil
	}
	return text, nil
}

func (a *Analyzer) generate(ctx context.Context, p analyzer.Prompt, schema *genai.Schema) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		CandidateCount:    1,
	}
	if p.Structured {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(p.User), cfg)
	if err != nil {
		return "", classifyErr(err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Text()), nil
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return analyzer.ClassifyStatus(apiErr.Code, err)
	}
	return analyzer.ClassifyNetwork(err)
}
