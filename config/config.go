package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
)

// Stage names used for per-stage model overrides.
const (
	StageTree      = "tree"
	StageContent   = "content"
	StageValidator = "validator"
)

// Defaults for a model endpoint.
const (
	DefaultBaseURL     = "https://api.deepseek.com"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4096
	DefaultHTTPAddr    = ":8080"
)

// Config is the application configuration.
type Config struct {
	// Base is the model every stage uses unless overridden.
	Base llm.Config
	// Stages holds the per-stage models, already merged over Base.
	Stages map[string]llm.Config

	MaxReviewIterations int
	ContentConcurrency  int
	LogLevel            log.LogLevel
	HTTPAddr            string
}

// LLM returns the model configuration for a stage, falling back to Base for unknown stages.
func (c *Config) LLM(stage string) llm.Config {
	if cfg, ok := c.Stages[stage]; ok {
		return cfg
	}
	return c.Base
}

// Load reads the given .env files (".env" when none are named) and then the process
// environment. Variables already set in the environment win over file values; files that do
// not exist are skipped.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", f, err)
		}
	}

	fileEnv := map[string]string{}
	if len(existing) > 0 {
		var err error
		if fileEnv, err = godotenv.Read(existing...); err != nil {
			return nil, fmt.Errorf("config: read env files: %w", err)
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	})
}

// FromLookup builds a Config from a variable lookup function such as os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	base := llm.Config{
		Provider:    llm.ProviderLangChain,
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	base = r.llm("LLM_BASE__", base)

	cfg := &Config{
		Base:                base,
		Stages:              make(map[string]llm.Config, 3),
		MaxReviewIterations: r.int("MAX_SELF_REVIEW_ITERATIONS", 2),
		ContentConcurrency:  r.int("CONTENT_CONCURRENCY", 1),
		HTTPAddr:            r.string("HTTP_ADDR", DefaultHTTPAddr),
	}
	for _, stage := range []string{StageTree, StageContent, StageValidator} {
		cfg.Stages[stage] = r.llm("LLM_"+strings.ToUpper(stage)+"__", base)
	}

	level, err := log.ParseLevel(r.string("LOG_LEVEL", ""))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	cfg.LogLevel = level

	if cfg.MaxReviewIterations < 0 {
		r.errs = append(r.errs, fmt.Errorf("MAX_SELF_REVIEW_ITERATIONS must not be negative, got %d", cfg.MaxReviewIterations))
	}
	if cfg.ContentConcurrency < 1 {
		r.errs = append(r.errs, fmt.Errorf("CONTENT_CONCURRENCY must be at least 1, got %d", cfg.ContentConcurrency))
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) string(key, def string) string {
	if v, ok := r.value(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

// llm overlays the variables under prefix on def, field by field.
func (r *reader) llm(prefix string, def llm.Config) llm.Config {
	return llm.Config{
		Provider:    r.string(prefix+"PROVIDER", def.Provider),
		APIKey:      r.string(prefix+"API_KEY", def.APIKey),
		BaseURL:     r.string(prefix+"BASE_URL", def.BaseURL),
		Model:       r.string(prefix+"MODEL", def.Model),
		Temperature: r.float(prefix+"TEMPERATURE", def.Temperature),
		MaxTokens:   r.int(prefix+"MAX_TOKENS", def.MaxTokens),
	}
}
