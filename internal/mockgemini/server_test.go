package mockgemini_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/review-insight-pipeline/internal/mockgemini"
)

func post(t *testing.T, url, key, system, prompt string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"contents":          []any{map[string]any{"role": "user", "parts": []any{map[string]any{"text": prompt}}}},
		"systemInstruction": map[string]any{"parts": []any{map[string]any{"text": system}}},
	})
	req, err := http.NewRequest(http.MethodPost, url+"/v1beta/models/test-model:generateContent", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestMockGemini_DefaultSentiment(t *testing.T) {
	t.Parallel()

	srv := mockgemini.New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := post(t, ts.URL, "k", "sys", `Analyze the following customer review and determine its overall sentiment: "Great \"value\", love it"`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Candidates) != 1 || len(out.Candidates[0].Content.Parts) != 1 {
		t.Fatalf("unexpected response shape: %+v", out)
	}
	if got := out.Candidates[0].Content.Parts[0].Text; !strings.Contains(got, `"POSITIVE"`) {
		t.Fatalf("text=%q, want POSITIVE sentiment JSON", got)
	}

	calls := srv.CallsFor(mockgemini.OpSentiment)
	if len(calls) != 1 {
		t.Fatalf("sentiment calls=%d want 1", len(calls))
	}
	if calls[0].Review != `Great "value", love it` {
		t.Fatalf("review=%q", calls[0].Review)
	}
	if calls[0].Model != "test-model" || calls[0].System != "sys" {
		t.Fatalf("unexpected call %+v", calls[0])
	}
}

func TestMockGemini_RejectsWrongKey(t *testing.T) {
	t.Parallel()

	srv := mockgemini.New()
	srv.RequireAPIKey("secret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := post(t, ts.URL, "wrong", "", `Draft a customer service response to the following review: "meh"`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d want 403", resp.StatusCode)
	}
	var out struct {
		Error struct {
			Code   int    `json:"code"`
			Status string `json:"status"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Code != 403 || out.Error.Status != "PERMISSION_DENIED" {
		t.Fatalf("error body=%+v", out.Error)
	}
}

func TestMockGemini_FailNextThenRecover(t *testing.T) {
	t.Parallel()

	srv := mockgemini.New()
	srv.FailNext(2, http.StatusTooManyRequests)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	prompt := `Provide a concise, 1-2 sentence summary of the following customer review: "Works. Fine."`
	for i := 0; i < 2; i++ {
		resp := post(t, ts.URL, "", "", prompt)
		resp.Body.Close()
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("attempt %d status=%d want 429", i, resp.StatusCode)
		}
	}
	resp := post(t, ts.URL, "", "", prompt)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if got := len(srv.Calls()); got != 3 {
		t.Fatalf("calls=%d want 3", got)
	}
}

func TestMockGemini_UnknownRoute(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(mockgemini.New().Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1beta/models/x:countTokens", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}
