package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CreativeBrief describes the trip to illustrate.
type CreativeBrief struct {
	Destination string   `json:"destination"`
	Summary     string   `json:"summary"`
	DayThemes   []string `json:"day_themes,omitempty"`
	Style       string   `json:"style,omitempty"`
}

// Creative generates media for a trip. Video and daily posters may be
// anchored on an already generated poster.
type Creative interface {
	Poster(ctx context.Context, brief CreativeBrief) (string, error)
	DayPoster(ctx context.Context, brief CreativeBrief, day int, anchorURL string) (string, error)
	Video(ctx context.Context, brief CreativeBrief, anchorURL string) (string, error)
}

// PlaceholderCreative returns stable asset URLs derived from the brief. It
// stands in for a media generation service.
type PlaceholderCreative struct {
	BaseURL string
}

func (p PlaceholderCreative) base() string {
	if p.BaseURL == "" {
		return "https://assets.wayfinder.invalid"
	}
	return strings.TrimRight(p.BaseURL, "/")
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func (p PlaceholderCreative) Poster(_ context.Context, b CreativeBrief) (string, error) {
	return fmt.Sprintf("%s/posters/%s.png", p.base(), slug(b.Destination)), nil
}

func (p PlaceholderCreative) DayPoster(_ context.Context, b CreativeBrief, day int, _ string) (string, error) {
	return fmt.Sprintf("%s/posters/%s-day-%d.png", p.base(), slug(b.Destination), day), nil
}

func (p PlaceholderCreative) Video(_ context.Context, b CreativeBrief, _ string) (string, error) {
	return fmt.Sprintf("%s/videos/%s.mp4", p.base(), slug(b.Destination)), nil
}

// HTTPCreative calls a media service:
//
//	POST {BaseURL}/poster      {brief}                      -> {"url": "..."}
//	POST {BaseURL}/poster/day  {brief, day, anchor_url}     -> {"url": "..."}
//	POST {BaseURL}/video       {brief, anchor_url}          -> {"url": "..."}
type HTTPCreative struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCreative creates a client for the media service at baseURL.
func NewHTTPCreative(baseURL string, timeout time.Duration) *HTTPCreative {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPCreative{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

type creativeRequest struct {
	CreativeBrief
	Day       int    `json:"day,omitempty"`
	AnchorURL string `json:"anchor_url,omitempty"`
}

func (h *HTTPCreative) Poster(ctx context.Context, b CreativeBrief) (string, error) {
	return h.post(ctx, "/poster", creativeRequest{CreativeBrief: b})
}

func (h *HTTPCreative) DayPoster(ctx context.Context, b CreativeBrief, day int, anchor string) (string, error) {
	return h.post(ctx, "/poster/day", creativeRequest{CreativeBrief: b, Day: day, AnchorURL: anchor})
}

func (h *HTTPCreative) Video(ctx context.Context, b CreativeBrief, anchor string) (string, error) {
	return h.post(ctx, "/video", creativeRequest{CreativeBrief: b, AnchorURL: anchor})
}

func (h *HTTPCreative) post(ctx context.Context, path string, body creativeRequest) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode creative request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build creative request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call creative %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("creative %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode creative response: %w", err)
	}
	if _, err := url.ParseRequestURI(out.URL); err != nil {
		return "", fmt.Errorf("creative %s returned invalid url %q", path, out.URL)
	}
	return out.URL, nil
}
