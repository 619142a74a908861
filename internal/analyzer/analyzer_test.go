package analyzer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
)

func TestDecodeSentiment(t *testing.T) {
	got, err := analyzer.DecodeSentiment(`{"sentiment":"positive","confidence_score":0.92}`)
	require.NoError(t, err)
	assert.Equal(t, analyzer.Positive, got.Label)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)

	got, err = analyzer.DecodeSentiment("```json\n{\"sentiment\":\"NEUTRAL\",\"confidence_score\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, analyzer.Neutral, got.Label)
}

func TestDecodeSentimentRejects(t *testing.T) {
	cases := map[string]string{
		"unknown label":    `{"sentiment":"MIXED","confidence_score":0.5}`,
		"confidence > 1":   `{"sentiment":"POSITIVE","confidence_score":1.5}`,
		"missing score":    `{"sentiment":"POSITIVE"}`,
		"score not number": `{"sentiment":"POSITIVE","confidence_score":"high"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := analyzer.DecodeSentiment(in)
			require.Error(t, err)
			assert.False(t, errors.Is(err, analyzer.ErrMalformedJSON))
		})
	}

	_, err := analyzer.DecodeSentiment("not json")
	require.ErrorIs(t, err, analyzer.ErrMalformedJSON)
}

func TestDecodeAspects(t *testing.T) {
	got, err := analyzer.DecodeAspects(`[{"topic":"battery","sentiment":"negative"},{"topic":" screen ","sentiment":"POSITIVE"}]`)
	require.NoError(t, err)
	assert.Equal(t, []analyzer.Aspect{
		{Topic: "battery", Sentiment: analyzer.Negative},
		{Topic: "screen", Sentiment: analyzer.Positive},
	}, got)

	got, err = analyzer.DecodeAspects(`[]`)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = analyzer.DecodeAspects(`{"topic":"x"}`)
	require.ErrorIs(t, err, analyzer.ErrMalformedJSON)

	_, err = analyzer.DecodeAspects(`[{"topic":"x","sentiment":"GREAT"}]`)
	require.Error(t, err)
	assert.False(t, errors.Is(err, analyzer.ErrMalformedJSON))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, analyzer.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, analyzer.StripFences("```\n[1]\n```"))
	assert.Equal(t, `[1]`, analyzer.StripFences("  [1] "))
}

func TestParseLanguage(t *testing.T) {
	l, err := analyzer.ParseLanguage("")
	require.NoError(t, err)
	assert.Equal(t, analyzer.DefaultLanguage, l)

	l, err = analyzer.ParseLanguage("japanese")
	require.NoError(t, err)
	assert.Equal(t, analyzer.Language("Japanese"), l)

	_, err = analyzer.ParseLanguage("Klingon")
	require.Error(t, err)
}

func TestParseLabel(t *testing.T) {
	l, err := analyzer.ParseLabel(" negative ")
	require.NoError(t, err)
	assert.Equal(t, analyzer.Negative, l)

	_, err = analyzer.ParseLabel("ERROR")
	require.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("boom")

	for _, code := range []int{401, 403} {
		err := analyzer.ClassifyStatus(code, base)
		assert.True(t, analyzer.IsPermission(err), "code %d", code)
		assert.False(t, analyzer.IsTransient(err), "code %d", code)
		assert.Equal(t, analyzer.PermissionMessage, err.Error())
		assert.ErrorIs(t, err, base)
	}
	for _, code := range []int{429, 500, 503} {
		err := analyzer.ClassifyStatus(code, base)
		assert.True(t, analyzer.IsTransient(err), "code %d", code)
		assert.False(t, analyzer.IsPermission(err), "code %d", code)
	}
	err := analyzer.ClassifyStatus(400, base)
	assert.Same(t, base, err)
}

func TestIsTransientDeadline(t *testing.T) {
	assert.True(t, analyzer.IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.False(t, analyzer.IsTransient(context.Canceled))
	assert.False(t, analyzer.IsTransient(nil))
}

func TestReplyPromptTone(t *testing.T) {
	req := analyzer.Request{Review: "late delivery", Language: "Spanish"}

	pos := analyzer.ReplyPrompt(req, analyzer.Positive)
	assert.Contains(t, pos.System, "grateful")
	assert.Contains(t, pos.System, "Do not exceed 3 sentences")
	assert.Contains(t, pos.System, "Spanish")

	for _, prior := range []analyzer.Label{analyzer.Negative, analyzer.Neutral, ""} {
		p := analyzer.ReplyPrompt(req, prior)
		assert.Contains(t, p.System, "apologetic")
		assert.Contains(t, p.System, "Do not exceed 4 sentences")
		assert.False(t, p.Structured)
	}
}

func TestStructuredPrompts(t *testing.T) {
	req := analyzer.Request{Review: `say "hi"`, Language: analyzer.DefaultLanguage}
	assert.True(t, analyzer.SentimentPrompt(req).Structured)
	assert.True(t, analyzer.AspectsPrompt(req).Structured)
	assert.False(t, analyzer.SummaryPrompt(req).Structured)
	assert.Contains(t, analyzer.SentimentPrompt(req).User, `"say \"hi\""`)
	assert.Contains(t, analyzer.SummaryPrompt(req).System, "English")
}
