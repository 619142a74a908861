package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedJSON is returned when a structured response is not JSON at all.
var ErrMalformedJSON = errors.New("response is not valid JSON")

// SentimentSchema is the JSON Schema every sentiment response must satisfy.
var SentimentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sentiment": map[string]any{
			"type": "string",
			"enum": labelEnum(),
		},
		"confidence_score": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	},
	"required": []any{"sentiment", "confidence_score"},
}

// AspectsSchema is the JSON Schema every aspects response must satisfy.
var AspectsSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"sentiment": map[string]any{
				"type": "string",
				"enum": labelEnum(),
			},
		},
		"required": []any{"topic", "sentiment"},
	},
}

func labelEnum() []any {
	out := make([]any, 0, len(Labels))
	for _, l := range Labels {
		out = append(out, string(l))
	}
	return out
}

var (
	sentimentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compile("sentiment.json", SentimentSchema)
	})
	aspectsSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		return compile("aspects.json", AspectsSchema)
	})
)

func compile(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// StripFences removes a surrounding markdown code fence (```json ... ```), if any.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// DecodeSentiment validates a structured sentiment response and decodes it.
// Labels are upper-cased before validation.
func DecodeSentiment(text string) (Sentiment, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(StripFences(text)), &doc); err != nil {
		return Sentiment{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if s, ok := doc["sentiment"].(string); ok {
		doc["sentiment"] = strings.ToUpper(strings.TrimSpace(s))
	}
	schema, err := sentimentSchema()
	if err != nil {
		return Sentiment{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Sentiment{}, fmt.Errorf("sentiment response does not match schema: %w", err)
	}
	label, err := ParseLabel(doc["sentiment"].(string))
	if err != nil {
		return Sentiment{}, err
	}
	conf, _ := doc["confidence_score"].(float64)
	return Sentiment{Label: label, Confidence: conf}, nil
}

// DecodeAspects validates a structured aspects response and decodes it.
// Input that is not JSON wraps ErrMalformedJSON.
func DecodeAspects(text string) ([]Aspect, error) {
	var doc any
	if err := json.Unmarshal([]byte(StripFences(text)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: aspects response is not an array", ErrMalformedJSON)
	}
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			if s, ok := m["sentiment"].(string); ok {
				m["sentiment"] = strings.ToUpper(strings.TrimSpace(s))
			}
		}
	}
	schema, err := aspectsSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(items); err != nil {
		return nil, fmt.Errorf("aspects response does not match schema: %w", err)
	}
	out := make([]Aspect, 0, len(items))
	for _, it := range items {
		m := it.(map[string]any)
		out = append(out, Aspect{
			Topic:     strings.TrimSpace(m["topic"].(string)),
			Sentiment: Label(m["sentiment"].(string)),
		})
	}
	return out, nil
}
