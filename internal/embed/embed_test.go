package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&Config{
		Provider:    "ollama",
		Model:       "test-model",
		Endpoint:    srv.URL,
		MaxRetries:  2,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c
}

func TestNewConfigParsing(t *testing.T) {
	tests := []struct {
		spec     string
		provider string
		model    string
		wantErr  bool
	}{
		{"openai/text-embedding-3-small", "openai", "text-embedding-3-small", false},
		{"openrouter/openai/text-embedding-3-small", "openrouter", "openai/text-embedding-3-small", false},
		{"ollama/nomic-embed-text", "ollama", "nomic-embed-text", false},
		{"", "", "", true},
		{"noslash", "", "", true},
		{"/model", "", "", true},
		{"provider/", "", "", true},
		{"plan9/foo", "", "", true},
	}
	for _, tt := range tests {
		cfg, err := NewConfig(tt.spec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewConfig(%q): expected error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewConfig(%q): %v", tt.spec, err)
			continue
		}
		if cfg.Provider != tt.provider || cfg.Model != tt.model {
			t.Errorf("NewConfig(%q) = %s/%s, want %s/%s", tt.spec, cfg.Provider, cfg.Model, tt.provider, tt.model)
		}
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("unexpected input: %v", req.Input)
		}
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`)
	})

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Data arrives out of order; the index field is authoritative.
		fmt.Fprint(w, `{"data":[{"embedding":[2],"index":1},{"embedding":[1],"index":0}]}`)
	})

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("order not preserved: %v", vecs)
	}
}

func TestEmbedEmptyTextFails(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty text")
	})
	if _, err := c.Embed(context.Background(), "   "); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbedEmptyVectorFails(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[],"index":0}]}`)
	})
	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	attempts := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1],"index":0}]}`)
	})

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed after retry: %v", err)
	}
	if attempts != 2 || len(vec) != 1 {
		t.Fatalf("expected success on second attempt, got attempts=%d vec=%v", attempts, vec)
	}
}

func TestEmbedExhaustsRetries(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.config.MaxRetries = 0

	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestValidateRequiresKeyOutsideOllama(t *testing.T) {
	cfg := &Config{Provider: "openai", Model: "m", Endpoint: "http://x", TimeoutSecs: 5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing API key error")
	}
	cfg.Provider = "ollama"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama should not need a key: %v", err)
	}
}
