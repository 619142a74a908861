package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides fields from environment variables that are set and non-empty.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := env{lookup: lookup}
	e.str("ANALYZER_PROVIDER", &c.Provider)
	e.str("GEMINI_API_KEY", &c.Gemini.APIKey)
	e.str("GEMINI_MODEL", &c.Gemini.Model)
	e.str("GEMINI_BASE_URL", &c.Gemini.BaseURL)
	e.str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	e.str("OPENAI_MODEL", &c.OpenAI.Model)
	e.str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	e.str("REVIEW_LANGUAGE", &c.Language)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FILE", &c.Log.File)
	e.str("SERVER_ADDR", &c.Server.Addr)
	e.int("MIN_WORDS", &c.MinWords)
	e.int("MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	e.duration("RETRY_BASE_DELAY", &c.Retry.BaseDelay)
	e.duration("REQUEST_TIMEOUT", &c.Retry.RequestTimeout)
	e.float("RATE_LIMIT_RPS", &c.Retry.RateLimitRPS)
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	return e.err
}

// env collects the first parse failure so ApplyEnv reads as a flat list.
type env struct {
	lookup LookupFunc
	err    error
}

func (e *env) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *env) int(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *env) float(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *env) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}
