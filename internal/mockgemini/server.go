// Package mockgemini serves a minimal Gemini-compatible generateContent endpoint.
// Answers come from the offline lexicon analyzer unless a Responder overrides them.
package mockgemini

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/stub"
)

// Op classifies a request by its prompt.
type Op string

const (
	OpUnknown   Op = "unknown"
	OpSentiment Op = "sentiment"
	OpSummary   Op = "summary"
	OpAspects   Op = "aspects"
	OpReply     Op = "reply"
)

var opPrefixes = []struct {
	prefix string
	op     Op
}{
	{"Analyze the following customer review and determine its overall sentiment:", OpSentiment},
	{"Provide a concise, 1-2 sentence summary of the following customer review:", OpSummary},
	{"Analyze the following review and extract 3 to 5 key aspects.", OpAspects},
	{"Draft a customer service response to the following review:", OpReply},
}

// Call records a request made to the mock service.
type Call struct {
	Method     string
	Path       string
	Model      string
	Op         Op
	Review     string
	System     string
	Prompt     string
	Structured bool
}

// Responder returns the model text for a call. ok=false falls back to the default answer.
type Responder func(Call) (text string, ok bool)

// Server implements the Gemini generateContent surface used by the analyzer.
type Server struct {
	mu        sync.Mutex
	calls     []Call
	apiKey    string
	failures  []int
	responder Responder
}

func New() *Server {
	return &Server{}
}

// RequireAPIKey enforces that requests carry x-goog-api-key == key.
// If key is empty, the key is not checked.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
}

// FailNext makes the next n requests fail with the given HTTP status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// SetResponder overrides model answers.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/", s.handleModels)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns the recorded calls for one op.
func (s *Server) CallsFor(op Op) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	GenerationConfig  *struct {
		ResponseMIMEType string `json:"responseMimeType,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
	Index        int     `json:"index"`
}

type generateResponse struct {
	Candidates   []candidate `json:"candidates"`
	ModelVersion string      `json:"modelVersion,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	// /v1beta/models/{model}:generateContent
	rest := strings.TrimPrefix(r.URL.Path, "/v1beta/models/")
	model, method, ok := strings.Cut(rest, ":")
	if !ok || method != "generateContent" || model == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req generateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}

	call := Call{Method: r.Method, Path: r.URL.Path, Model: model}
	if req.SystemInstruction != nil {
		call.System = joinParts(req.SystemInstruction.Parts)
	}
	if len(req.Contents) > 0 {
		call.Prompt = joinParts(req.Contents[len(req.Contents)-1].Parts)
	}
	call.Structured = req.GenerationConfig != nil && req.GenerationConfig.ResponseMIMEType == "application/json"
	call.Op, call.Review = classify(call.Prompt)

	s.mu.Lock()
	s.calls = append(s.calls, call)
	expectedKey := s.apiKey
	var failStatus int
	if len(s.failures) > 0 {
		failStatus = s.failures[0]
		s.failures = s.failures[1:]
	}
	responder := s.responder
	s.mu.Unlock()

	if expectedKey != "" && r.Header.Get("x-goog-api-key") != expectedKey {
		writeError(w, http.StatusForbidden, "API key not valid. Please pass a valid API key.")
		return
	}
	if failStatus != 0 {
		writeError(w, failStatus, "injected failure")
		return
	}

	text, ok := "", false
	if responder != nil {
		text, ok = responder(call)
	}
	if !ok {
		text, err = defaultAnswer(call)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(generateResponse{
		Candidates: []candidate{{
			Content:      content{Role: "model", Parts: []part{{Text: text}}},
			FinishReason: "STOP",
		}},
		ModelVersion: model,
	})
}

func joinParts(parts []part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func classify(prompt string) (Op, string) {
	for _, p := range opPrefixes {
		if !strings.HasPrefix(prompt, p.prefix) {
			continue
		}
		quoted := strings.TrimSpace(prompt[len(p.prefix):])
		if i := strings.Index(quoted, `: "`); i >= 0 && !strings.HasPrefix(quoted, `"`) {
			quoted = quoted[i+2:]
		}
		review, err := strconv.Unquote(quoted)
		if err != nil {
			review = strings.Trim(quoted, `"`)
		}
		return p.op, review
	}
	return OpUnknown, prompt
}

func defaultAnswer(c Call) (string, error) {
	switch c.Op {
	case OpSentiment:
		s := stub.Classify(c.Review)
		b, err := json.Marshal(map[string]any{"sentiment": s.Label, "confidence_score": s.Confidence})
		return string(b), err
	case OpSummary:
		return stub.Summarize(c.Review), nil
	case OpAspects:
		type aspect struct {
			Topic     string `json:"topic"`
			Sentiment string `json:"sentiment"`
		}
		out := []aspect{}
		for _, a := range stub.ExtractAspects(c.Review) {
			out = append(out, aspect{Topic: a.Topic, Sentiment: string(a.Sentiment)})
		}
		b, err := json.Marshal(out)
		return string(b), err
	case OpReply:
		prior := analyzer.Negative
		if strings.Contains(c.System, "grateful") {
			prior = analyzer.Positive
		}
		return stub.Reply(c.Review, prior), nil
	}
	return "", fmt.Errorf("unrecognized prompt")
}

var statusNames = map[int]string{
	http.StatusBadRequest:          "INVALID_ARGUMENT",
	http.StatusUnauthorized:        "UNAUTHENTICATED",
	http.StatusForbidden:           "PERMISSION_DENIED",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusTooManyRequests:     "RESOURCE_EXHAUSTED",
	http.StatusInternalServerError: "INTERNAL",
	http.StatusServiceUnavailable:  "UNAVAILABLE",
}

func writeError(w http.ResponseWriter, code int, msg string) {
	status, ok := statusNames[code]
	if !ok {
		status = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
			"status":  status,
		},
	})
}
