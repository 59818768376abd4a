// Package grist is a small client for the Grist document REST API.
package grist

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

	"golang.org/x/time/rate"
)

// ── Verbs ──────────────────────────────────────────────────

// Verb is one of the request kinds the client knows how to build.
type Verb int

const (
	VerbGet Verb = iota
	VerbPost
	VerbPatch
	VerbPut
	VerbDelete
)

type verbSpec struct {
	method   string
	withBody bool
}

var verbs = map[Verb]verbSpec{
	VerbGet:    {method: http.MethodGet},
	VerbPost:   {method: http.MethodPost, withBody: true},
	VerbPatch:  {method: http.MethodPatch, withBody: true},
	VerbPut:    {method: http.MethodPut, withBody: true},
	VerbDelete: {method: http.MethodDelete},
}

func (v Verb) String() string {
	if s, ok := verbs[v]; ok {
		return s.method
	}
	return fmt.Sprintf("Verb(%d)", int(v))
}

// ── Errors ─────────────────────────────────────────────────

// RequestError is returned for any response other than 200 or 201.
type RequestError struct {
	Verb     Verb
	Endpoint string
	Status   int
	Body     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("failed to %s %s: %d - %s", e.Verb, e.Endpoint, e.Status, e.Body)
}

// ── Client ─────────────────────────────────────────────────

// Client talks to a single document.
type Client struct {
	BaseURL    string
	APIKey     string
	DocID      string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets a per-request timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.HTTPClient
		hc.Timeout = d
		c.HTTPClient = &hc
	}
}

// WithRateLimit caps the request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for one document.
func NewClient(baseURL, apiKey, docID string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		DocID:      docID,
		HTTPClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// docPath prefixes an endpoint with the document path.
func (c *Client) docPath(format string, args ...any) string {
	return "/docs/" + url.PathEscape(c.DocID) + fmt.Sprintf(format, args...)
}

// Do sends a request and returns the response when the status is 200 or 201.
// body is JSON-encoded unless it is an io.Reader, in which case contentType
// must be set. The caller closes the response body.
func (c *Client) Do(ctx context.Context, verb Verb, endpoint string, query url.Values, body any, contentType string) (*http.Response, error) {
	spec, ok := verbs[verb]
	if !ok {
		return nil, fmt.Errorf("unsupported verb %v", verb)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil && spec.withBody {
		switch b := body.(type) {
		case io.Reader:
			reader = b
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request body: %w", err)
			}
			reader = bytes.NewReader(data)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if reader != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", verb, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RequestError{Verb: verb, Endpoint: endpoint, Status: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

// doJSON sends a request and decodes the JSON response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, verb Verb, endpoint string, query url.Values, body, out any) error {
	resp, err := c.Do(ctx, verb, endpoint, query, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", verb, endpoint, err)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}
