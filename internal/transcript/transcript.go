// Package transcript resolves video URLs and fetches their transcripts from
// the companion transcript service.
package transcript

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidURL marks input that does not contain a recognizable video URL.
var ErrInvalidURL = errors.New("invalid video URL")

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// urlPatterns are tried in order; shorts first so a shorts link is not
// misread by the broader catch-alls below it.
var urlPatterns = []struct {
	re       *regexp.Regexp
	isShorts bool
}{
	{regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`), true},
	{regexp.MustCompile(`youtu\.be/shorts/([a-zA-Z0-9_-]{11})`), true},
	{regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`), false},
	{regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`), false},
	{regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`), false},
	{regexp.MustCompile(`youtube\.com/v/([a-zA-Z0-9_-]{11})`), false},
	{regexp.MustCompile(`youtube\.com/.*[?&]v=([a-zA-Z0-9_-]{11})`), false},
	{regexp.MustCompile(`music\.youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`), false},
}

// VideoInfo is the parsed identity of a video URL.
type VideoInfo struct {
	ID       string
	IsShorts bool
	CleanURL string
	EmbedURL string
}

// ParseVideoURL extracts the video identity from any supported URL shape
// (watch, short link, shorts, embed, music). Returns ErrInvalidURL when no
// video ID can be found.
func ParseVideoURL(raw string) (*VideoInfo, error) {
	input := strings.TrimSpace(raw)
	if decoded, err := url.QueryUnescape(input); err == nil {
		input = decoded
	}

	for _, p := range urlPatterns {
		if m := p.re.FindStringSubmatch(input); m != nil {
			return newVideoInfo(m[1], p.isShorts), nil
		}
	}

	// Fallback: a parseable URL with a well-formed v= parameter.
	if u, err := url.Parse(input); err == nil {
		if v := u.Query().Get("v"); IsValidVideoID(v) {
			return newVideoInfo(v, false), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
}

func newVideoInfo(id string, isShorts bool) *VideoInfo {
	clean := "https://www.youtube.com/watch?v=" + id
	if isShorts {
		clean = "https://www.youtube.com/shorts/" + id
	}
	return &VideoInfo{
		ID:       id,
		IsShorts: isShorts,
		CleanURL: clean,
		EmbedURL: "https://www.youtube.com/embed/" + id,
	}
}

// TimestampURL returns a watch link seeking to the given offset.
func (v *VideoInfo) TimestampURL(seconds float64) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", v.ID, int(seconds))
}

// IsValidVideoID reports whether id is a well-formed 11-character video ID.
func IsValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ExtractVideoIDs returns the distinct video IDs found in free-form text,
// in order of first appearance.
func ExtractVideoIDs(text string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, field := range strings.Fields(text) {
		info, err := ParseVideoURL(field)
		if err != nil {
			continue
		}
		if _, dup := seen[info.ID]; dup {
			continue
		}
		seen[info.ID] = struct{}{}
		ids = append(ids, info.ID)
	}
	return ids
}

// ParseTimestamp converts "[1:23]", "45.2s", "1:23:45" or "45" to seconds.
// Malformed input yields 0.
func ParseTimestamp(ts string) float64 {
	clean := strings.Trim(ts, "[]")
	clean = strings.TrimSuffix(clean, "s")

	if strings.Contains(clean, ":") {
		parts := strings.Split(clean, ":")
		nums := make([]float64, len(parts))
		for i, p := range parts {
			n, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return 0
			}
			nums[i] = n
		}
		switch len(nums) {
		case 2:
			return nums[0]*60 + nums[1]
		case 3:
			return nums[0]*3600 + nums[1]*60 + nums[2]
		}
		return 0
	}
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return n
}

// FormatTimestamp renders seconds as "m:ss" or "h:mm:ss".
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
