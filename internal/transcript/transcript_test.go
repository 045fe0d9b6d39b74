package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseVideoURL(t *testing.T) {
	tests := []struct {
		url      string
		id       string
		isShorts bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/abc123DEF45", "abc123DEF45", true},
		{"https://youtu.be/shorts/abc123DEF45", "abc123DEF45", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"  https://youtu.be/dQw4w9WgXcQ  ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
	}
	for _, tt := range tests {
		info, err := ParseVideoURL(tt.url)
		if err != nil {
			t.Errorf("ParseVideoURL(%q): %v", tt.url, err)
			continue
		}
		if info.ID != tt.id || info.IsShorts != tt.isShorts {
			t.Errorf("ParseVideoURL(%q) = %q shorts=%v, want %q shorts=%v",
				tt.url, info.ID, info.IsShorts, tt.id, tt.isShorts)
		}
	}
}

func TestParseVideoURLRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "not a url", "https://example.com/watch?v=short", "https://vimeo.com/12345"} {
		if _, err := ParseVideoURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ParseVideoURL(%q): expected ErrInvalidURL, got %v", bad, err)
		}
	}
}

func TestVideoInfoURLs(t *testing.T) {
	info, err := ParseVideoURL("https://www.youtube.com/shorts/abc123DEF45")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.CleanURL != "https://www.youtube.com/shorts/abc123DEF45" {
		t.Errorf("shorts clean URL should keep the shorts form, got %q", info.CleanURL)
	}
	if info.EmbedURL != "https://www.youtube.com/embed/abc123DEF45" {
		t.Errorf("unexpected embed URL %q", info.EmbedURL)
	}
	if got := info.TimestampURL(83.9); got != "https://www.youtube.com/watch?v=abc123DEF45&t=83s" {
		t.Errorf("unexpected timestamp URL %q", got)
	}
}

func TestExtractVideoIDs(t *testing.T) {
	text := "see https://youtu.be/dQw4w9WgXcQ and https://www.youtube.com/watch?v=abc123DEF45 plus https://youtu.be/dQw4w9WgXcQ again"
	ids := ExtractVideoIDs(text)
	if len(ids) != 2 || ids[0] != "dQw4w9WgXcQ" || ids[1] != "abc123DEF45" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"[1:23]", 83},
		{"1:23", 83},
		{"[45.2s]", 45.2},
		{"[1:23:45]", 5025},
		{"45", 45},
		{"nonsense", 0},
		{"1:xx", 0},
	}
	for _, tt := range tests {
		if got := ParseTimestamp(tt.in); got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{83, "1:23"},
		{5025, "1:23:45"},
		{9, "0:09"},
		{3600, "1:00:00"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchReturnsTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"text":"hello world","title":"Greetings","segments":[{"text":"hello","start":0,"duration":1.5}]}`)
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tr.Text != "hello world" || tr.Title != "Greetings" || len(tr.Segments) != 1 {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
}

func TestFetchEmptyTranscriptFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":""}`)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ"); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestFetchInvalidURLShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid URL")
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Fetch(context.Background(), "junk"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}
