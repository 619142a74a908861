package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/review-insight-pipeline/internal/mockgemini"
)

func main() {
	addr := defaultString("MOCK_GEMINI_ADDR", ":8081")
	apiKey := defaultString("MOCK_GEMINI_API_KEY", "")
	failFirst := 0
	failStatus := http.StatusServiceUnavailable

	fs := flag.NewFlagSet("mock-gemini", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_GEMINI_ADDR)")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this x-goog-api-key; empty accepts any (env: MOCK_GEMINI_API_KEY)")
	fs.IntVar(&failFirst, "fail-first", failFirst, "Fail the first N generateContent requests")
	fs.IntVar(&failStatus, "fail-status", failStatus, "HTTP status used by --fail-first")
	_ = fs.Parse(os.Args[1:])

	srv := mockgemini.New()
	srv.RequireAPIKey(apiKey)
	if failFirst > 0 {
		srv.FailNext(failFirst, failStatus)
	}

	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	_, _ = fmt.Fprintf(os.Stdout, "mock-gemini listening on %s (set GEMINI_BASE_URL=http://localhost%s)\n", addr, addr)
	if err := hs.ListenAndServe(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
