package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const summarizeSystem = `You are a precise note summarizer for a tagging app.
Return STRICT JSON with keys: summary, canonical_name, keywords (array), subjects (array).
- summary: 4-6 tight sentences (or 6-10 bullets if source is long).
- canonical_name: the single best subject label for this note (neutral, general), no hashtags.
- keywords: 5-12 short items (entities, noun phrases, actions).
- subjects: 1-5 broader super categories that the canonical_name fits into (e.g., 'politics' for 'israel palestine conflict').`

const decomposeSystem = `You are a precise note summarizer for a tagging app.
The source may cover several distinct subjects. Return STRICT JSON with keys:
overall_summary, topics (array of 1-3 items, most prominent first).
Each topic has keys: name, summary, keywords (array), subjects (array), prominence.
- overall_summary: 4-6 tight sentences covering the whole source.
- name: the single best subject label for that topic (neutral, general), no hashtags.
- summary: 3-5 sentences covering only that topic's share of the source.
- keywords: 5-12 short items (entities, noun phrases, actions).
- subjects: 1-5 broader super categories the name fits into.
- prominence: integer 0-100, the topic's share of the source; shares sum to ~100.`

// Client implements Summarizer against an OpenAI-compatible chat API.
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
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}
	return &Client{
		config: *config,
		http:   &http.Client{Timeout: time.Duration(config.TimeoutSecs) * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFmt struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []chatMessage    `json:"messages"`
	Temperature    float64          `json:"temperature"`
	ResponseFormat *chatResponseFmt `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize condenses the transcript into a summary plus a canonical topic
// name suggestion. A response that is not the requested strict JSON degrades
// gracefully: the raw text becomes the summary under the name "general",
// rather than failing the whole ingestion.
func (c *Client) Summarize(ctx context.Context, transcript, userPrompt string) (Result, error) {
	content, err := c.complete(ctx, summarizeSystem, userMessage(transcript, userPrompt))
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil || res.Summary == "" || res.CanonicalName == "" {
		return Result{
			Summary:       content,
			CanonicalName: "general",
			Keywords:      []string{},
			Subjects:      []string{},
		}, nil
	}
	if res.Keywords == nil {
		res.Keywords = []string{}
	}
	if res.Subjects == nil {
		res.Subjects = []string{}
	}
	return res, nil
}

// Decompose splits the transcript into a primary topic plus up to two
// secondary topics. A malformed response degrades to a single "general"
// topic wrapping the raw text, mirroring Summarize.
func (c *Client) Decompose(ctx context.Context, transcript, userPrompt string) (Decomposition, error) {
	content, err := c.complete(ctx, decomposeSystem, userMessage(transcript, userPrompt))
	if err != nil {
		return Decomposition{}, err
	}

	fallback := Decomposition{
		OverallSummary: content,
		Topics: []SubTopic{{
			Name:       "general",
			Summary:    content,
			Keywords:   []string{},
			Subjects:   []string{},
			Prominence: 100,
		}},
	}

	var dec Decomposition
	if err := json.Unmarshal([]byte(content), &dec); err != nil {
		return fallback, nil
	}

	// Valid JSON can still carry unusable sub-topics. A sub-topic without a
	// summary is dropped; one without a name defaults to "general", the same
	// degradation Summarize applies. No unnamed sub-topic may reach the
	// clustering pipeline.
	kept := dec.Topics[:0]
	for _, st := range dec.Topics {
		if strings.TrimSpace(st.Summary) == "" {
			continue
		}
		if strings.TrimSpace(st.Name) == "" {
			st.Name = "general"
		}
		if st.Keywords == nil {
			st.Keywords = []string{}
		}
		if st.Subjects == nil {
			st.Subjects = []string{}
		}
		kept = append(kept, st)
	}
	dec.Topics = kept
	if len(dec.Topics) == 0 {
		return fallback, nil
	}
	if len(dec.Topics) > 3 {
		dec.Topics = dec.Topics[:3]
	}
	if dec.OverallSummary == "" {
		dec.OverallSummary = dec.Topics[0].Summary
	}
	return dec, nil
}

func userMessage(transcript, userPrompt string) string {
	if userPrompt == "" {
		userPrompt = "(none)"
	}
	return fmt.Sprintf("TRANSCRIPT:\n%s\n\nEXTRA INSTRUCTIONS FROM USER (optional): %s", transcript, userPrompt)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: &chatResponseFmt{Type: "json_object"},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrSummarization, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrSummarization, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Provider == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/gistlabs/gist")
		httpReq.Header.Set("X-Title", "Gist")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", ErrSummarization, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrSummarization, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrSummarization, resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrSummarization, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrSummarization, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrSummarization)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
