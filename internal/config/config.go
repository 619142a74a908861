// Package config loads reviewer settings with precedence env > YAML file > defaults.
// Command-line flags are applied on top by the caller before Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/gemini"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/openai"
	"github.com/shpitdev/review-insight-pipeline/internal/analyzer/retry"
	"github.com/shpitdev/review-insight-pipeline/internal/logging"
	"github.com/shpitdev/review-insight-pipeline/internal/review"
)

// Analyzer providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStub   = "stub"
)

type Gemini struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Retry struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Provider string `yaml:"provider"`
	Language string `yaml:"language"`
	MinWords int    `yaml:"min_words"`

	Gemini Gemini `yaml:"gemini"`
	OpenAI OpenAI `yaml:"openai"`
	Retry  Retry  `yaml:"retry"`
	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider: ProviderGemini,
		Language: string(analyzer.DefaultLanguage),
		MinWords: review.MinWords,
		Gemini:   Gemini{Model: gemini.DefaultModel},
		OpenAI:   OpenAI{Model: openai.DefaultModel},
		Retry: Retry{
			MaxAttempts:    retry.DefaultMaxAttempts,
			BaseDelay:      retry.DefaultBaseDelay,
			RequestTimeout: 60 * time.Second,
		},
		Log:    Log{Level: "info"},
		Server: Server{Addr: ":8080"},
	}
}

// Load applies the YAML file at path (if non-empty) and then the process environment over the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if strings.TrimSpace(path) != "" {
		if err := c.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the provider, its credentials, the language and numeric ranges.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderStub:
	default:
		return fmt.Errorf("unknown analyzer provider %q (want %s, %s or %s)", c.Provider, ProviderGemini, ProviderOpenAI, ProviderStub)
	}
	if _, err := analyzer.ParseLanguage(c.Language); err != nil {
		return err
	}
	if c.MinWords < 1 {
		return fmt.Errorf("min_words must be >= 1, got %d", c.MinWords)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > retry.MaxAttempts {
		return fmt.Errorf("retry.max_attempts must be between 1 and %d, got %d", retry.MaxAttempts, c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0, got %s", c.Retry.BaseDelay)
	}
	if c.Retry.RequestTimeout < 0 {
		return fmt.Errorf("retry.request_timeout must be >= 0, got %s", c.Retry.RequestTimeout)
	}
	if c.Retry.RateLimitRPS < 0 {
		return fmt.Errorf("retry.rate_limit_rps must be >= 0, got %g", c.Retry.RateLimitRPS)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LanguageValue returns the parsed language; call after Validate.
func (c *Config) LanguageValue() analyzer.Language {
	l, err := analyzer.ParseLanguage(c.Language)
	if err != nil {
		return analyzer.DefaultLanguage
	}
	return l
}

// RetryOptions converts the retry section for retry.Wrap.
func (c *Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		RequestTimeout: c.Retry.RequestTimeout,
		RateLimitRPS:   c.Retry.RateLimitRPS,
	}
}
