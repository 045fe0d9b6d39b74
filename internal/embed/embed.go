// Package embed turns text into embedding vectors via OpenAI-compatible
// /v1/embeddings endpoints (openai, openrouter, ollama, or a custom URL).
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrEmbedding wraps every failure to produce a usable vector, including
// providers that return an empty embedding. Callers abort ingestion on it;
// a note without an embedding can never be matched or clustered.
var ErrEmbedding = errors.New("embedding failed")

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Config holds embedding provider configuration.
type Config struct {
	Provider    string // "openai", "openrouter", "ollama", "custom"
	Model       string
	Endpoint    string // full API URL
	APIKey      string
	MaxRetries  int // default 3
	TimeoutSecs int // per-request timeout, default 60
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPError carries the status and Retry-After hint of a failed API call.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewConfig parses "provider/model" (model may itself contain slashes, as in
// "openrouter/openai/text-embedding-3-small") and fills provider defaults.
func NewConfig(providerModel string) (*Config, error) {
	if providerModel == "" {
		return nil, fmt.Errorf("empty embedding spec")
	}
	slash := strings.Index(providerModel, "/")
	if slash <= 0 || slash == len(providerModel)-1 {
		return nil, fmt.Errorf("invalid embedding spec %q: expected provider/model", providerModel)
	}
	provider, model := providerModel[:slash], providerModel[slash+1:]

	cfg := &Config{
		Provider:    provider,
		Model:       model,
		MaxRetries:  3,
		TimeoutSecs: 60,
	}
	switch provider {
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		cfg.Endpoint = "https://openrouter.ai/api/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/embeddings"
	case "custom":
		cfg.Endpoint = os.Getenv("GIST_EMBED_ENDPOINT")
		cfg.APIKey = os.Getenv("GIST_EMBED_API_KEY")
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (supported: openai, openrouter, ollama, custom)", provider)
	}

	if endpoint := os.Getenv("GIST_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("GIST_EMBED_API_KEY"); key != "" {
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

// Client implements Embedder against an HTTP API.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient validates config and returns a ready client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}
	return &Client{
		config: *config,
		http:   &http.Client{Timeout: time.Duration(config.TimeoutSecs) * time.Second},
	}, nil
}

// Embed returns the vector for one text. An empty text or an empty vector
// from the provider is an error; the clustering pipeline has no use for a
// note it cannot place in embedding space.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbedding)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", ErrEmbedding)
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in one API call, retrying transient
// failures with exponential backoff (1s, 2s, 4s) and honoring Retry-After
// on rate limits.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		vectors, err := c.attempt(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}
		backoff := time.Duration(1<<attempt) * time.Second
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("%w: after %d attempts: %v", ErrEmbedding, c.config.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Provider == "openrouter" {
		req.Header.Set("HTTP-Referer", "https://github.com/gistlabs/gist")
		req.Header.Set("X-Title", "Gist")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			RetryAfter: retryAfter,
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("invalid embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
