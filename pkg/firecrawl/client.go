package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the Firecrawl v2 API.
const defaultBaseURL = "https://api.firecrawl.dev/v2"

// Output formats requested for every batch job. Markdown is the primary text
// format; links feeds SourceRecord.Links.
var defaultFormats = []string{"markdown", "links"}

// ErrMissingAPIKey is returned before any request is built when the client
// has no API key.
var ErrMissingAPIKey = eris.New("firecrawl: api key not set")

// Client defines the Firecrawl batch scrape operations used by the relay.
type Client interface {
	StartBatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error)
	GetBatchScrapeStatus(ctx context.Context, id string) (*StatusResponse, error)
}

// BatchScrapeRequest is the body for POST /batch/scrape.
type BatchScrapeRequest struct {
	URLs            []string `json:"urls"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// BatchScrapeResponse is the response from POST /batch/scrape. Body keeps the
// provider's response verbatim for diagnostics.
type BatchScrapeResponse struct {
	ID         string
	HTTPStatus int
	Body       json.RawMessage
}

// StatusResponse is the response from GET /batch/scrape/{id}. Status is the
// provider's job state; interpreting it is left to the caller.
type StatusResponse struct {
	Status     string
	HTTPStatus int
	Body       json.RawMessage
}

// APIError is returned when Firecrawl responds with a non-2xx status, or with
// a 2xx submission that carries no job id.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, string(e.Body))
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second across all jobs sharing
// this client. Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithObserver registers a callback invoked after every HTTP exchange.
func WithObserver(fn func(op string, status int, d time.Duration)) Option {
	return func(c *httpClient) {
		c.observe = fn
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	observe func(op string, status int, d time.Duration)
}

// NewClient creates a new Firecrawl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) StartBatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(req.Formats) == 0 {
		req.Formats = defaultFormats
	}

	status, body, err := c.post(ctx, "submit", "/batch/scrape", req)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: start batch scrape")
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: body}
	}

	var envelope struct {
		ID    string `json:"id"`
		JobID string `json:"jobId"`
	}
	_ = json.Unmarshal(body, &envelope)
	id := envelope.ID
	if id == "" {
		id = envelope.JobID
	}
	if id == "" {
		return nil, &APIError{StatusCode: status, Body: body, Message: "response missing job id"}
	}

	return &BatchScrapeResponse{ID: id, HTTPStatus: status, Body: body}, nil
}

func (c *httpClient) GetBatchScrapeStatus(ctx context.Context, id string) (*StatusResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	status, body, err := c.get(ctx, "status", "/batch/scrape/"+url.PathEscape(id))
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("firecrawl: get batch scrape status %s", id))
	}

	var envelope struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &envelope)

	return &StatusResponse{Status: envelope.Status, HTTPStatus: status, Body: body}, nil
}

func (c *httpClient) post(ctx context.Context, op, path string, body any) (int, json.RawMessage, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(op, req)
}

func (c *httpClient) get(ctx context.Context, op, path string) (int, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(op, req)
}

// do executes req and returns the status and the body as JSON. Non-2xx
// statuses are not errors here; callers decide what they mean.
func (c *httpClient) do(op string, req *http.Request) (int, json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return 0, nil, eris.Wrap(err, "rate limit wait")
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(op, 0, start)
		return 0, nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.record(op, resp.StatusCode, start)
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "read response body")
	}

	return resp.StatusCode, RawJSON(data), nil
}

func (c *httpClient) record(op string, status int, start time.Time) {
	if c.observe != nil {
		c.observe(op, status, time.Since(start))
	}
}

// RawJSON returns data unchanged when it is valid JSON. Anything else is
// wrapped as {"raw": "<text>"} so it can still be reported to callers.
func RawJSON(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(data)})
	if err != nil {
		return json.RawMessage(`{"raw":""}`)
	}
	return wrapped
}
