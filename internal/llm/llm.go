// Package llm condenses raw transcripts into summaries plus topic metadata
// via OpenAI-compatible chat-completions endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSummarization wraps failures of the summarize/decompose calls. The
// ingestion pipeline aborts on it before any store mutation.
var ErrSummarization = errors.New("summarization failed")

// Result is the structured output of a single-topic summarization.
type Result struct {
	Summary       string   `json:"summary"`
	CanonicalName string   `json:"canonical_name"`
	Keywords      []string `json:"keywords"`
	Subjects      []string `json:"subjects"`
}

// SubTopic is one extracted topic of a multi-topic decomposition.
type SubTopic struct {
	Name       string   `json:"name"`
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Subjects   []string `json:"subjects"`
	Prominence int      `json:"prominence"` // share of source content, 0-100
}

// Decomposition is the structured output of a multi-topic summarization:
// a primary topic plus up to two secondary ones.
type Decomposition struct {
	OverallSummary string     `json:"overall_summary"`
	Topics         []SubTopic `json:"topics"`
}

// Summarizer condenses transcripts into topic-ready metadata.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, userPrompt string) (Result, error)
	Decompose(ctx context.Context, transcript, userPrompt string) (Decomposition, error)
}

// Config holds summarization provider configuration.
type Config struct {
	Provider    string // "openai", "openrouter", "ollama", "custom"
	Model       string
	Endpoint    string // full chat-completions URL
	APIKey      string
	TimeoutSecs int // per-request timeout, default 120
}

// NewConfig parses "provider/model" and fills provider defaults.
func NewConfig(providerModel string) (*Config, error) {
	if providerModel == "" {
		return nil, fmt.Errorf("empty llm spec")
	}
	slash := strings.Index(providerModel, "/")
	if slash <= 0 || slash == len(providerModel)-1 {
		return nil, fmt.Errorf("invalid llm spec %q: expected provider/model", providerModel)
	}
	provider, model := providerModel[:slash], providerModel[slash+1:]

	cfg := &Config{
		Provider:    provider,
		Model:       model,
		TimeoutSecs: 120,
	}
	switch provider {
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		cfg.Endpoint = "https://openrouter.ai/api/v1/chat/completions"
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/chat/completions"
	case "custom":
		cfg.Endpoint = os.Getenv("GIST_LLM_ENDPOINT")
		cfg.APIKey = os.Getenv("GIST_LLM_API_KEY")
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: openai, openrouter, ollama, custom)", provider)
	}

	if endpoint := os.Getenv("GIST_LLM_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("GIST_LLM_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return cfg, nil
}

// Validate checks the configuration is complete.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %q", c.Provider)
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
