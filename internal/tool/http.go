package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPAdapter fetches one category of data from a JSON endpoint:
//
//	GET {BaseURL}?destination=Tokyo&days=3&interests=food,art
//
// The response body must decode into T. Any transport, status or decoding
// failure is returned as an error so the caller can degrade.
type HTTPAdapter[T any] struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPAdapter creates an adapter for baseURL. A zero timeout uses 10s.
func NewHTTPAdapter[T any](name, baseURL string, timeout time.Duration) *HTTPAdapter[T] {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdapter[T]{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAdapter[T]) Name() string { return a.name }

func (a *HTTPAdapter[T]) Lookup(ctx context.Context, q Query) (T, error) {
	var out T

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return out, fmt.Errorf("parse %s url: %w", a.name, err)
	}
	params := u.Query()
	params.Set("destination", q.Destination)
	params.Set("days", strconv.Itoa(q.Days))
	if q.Origin != "" {
		params.Set("origin", q.Origin)
	}
	if len(q.Interests) > 0 {
		params.Set("interests", strings.Join(q.Interests, ","))
	}
	if len(q.DietaryRestrictions) > 0 {
		params.Set("dietary", strings.Join(q.DietaryRestrictions, ","))
	}
	if q.BudgetLevel != "" {
		params.Set("budget", q.BudgetLevel)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return out, fmt.Errorf("build %s request: %w", a.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("call %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("%s returned %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", a.name, err)
	}
	return out, nil
}
