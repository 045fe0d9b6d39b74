package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultServiceURL is the companion transcript service address.
const DefaultServiceURL = "http://localhost:8001"

// Segment is one timed span of a fetched transcript.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcript is the fetched transcript of one video.
type Transcript struct {
	Text     string    `json:"text"`
	Title    string    `json:"title,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Fetcher retrieves transcripts for video URLs.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL string) (*Transcript, error)
}

// Client implements Fetcher against the transcript service's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the service at baseURL. An empty baseURL
// falls back to GIST_TRANSCRIPT_SERVICE_URL, then the localhost default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("GIST_TRANSCRIPT_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type fetchRequest struct {
	URL               string `json:"url"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	TimestampFormat   string `json:"timestamp_format"`
	IncludeMetadata   bool   `json:"include_metadata"`
	ForceFallback     bool   `json:"force_fallback"`
}

type fetchResponse struct {
	Text     string    `json:"text"`
	Title    string    `json:"title"`
	Segments []Segment `json:"segments"`
	Error    string    `json:"error"`
}

// Fetch validates the URL, normalizes it, and retrieves the transcript.
// Shorts get the service's fallback extraction path; their captions are
// often missing from the primary API.
func (c *Client) Fetch(ctx context.Context, videoURL string) (*Transcript, error) {
	info, err := ParseVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(fetchRequest{
		URL:               info.CleanURL,
		IncludeTimestamps: true,
		TimestampFormat:   "seconds",
		IncludeMetadata:   true,
		ForceFallback:     info.IsShorts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript for %s: %w", info.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading transcript response: %w", err)
	}

	var parsed fetchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing transcript response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if msg == "" {
			msg = string(respBody)
		}
		return nil, fmt.Errorf("transcript service error (status %d): %s", resp.StatusCode, msg)
	}
	if parsed.Text == "" {
		return nil, fmt.Errorf("no transcript available for video %s", info.ID)
	}

	return &Transcript{Text: parsed.Text, Title: parsed.Title, Segments: parsed.Segments}, nil
}
