// Package prospeo is a thin client for the Prospeo contact-data API:
// person search plus social-URL enrichment.
package prospeo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.prospeo.io"

// Client searches people and enriches them by social URL.
type Client interface {
	SearchPerson(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Enrich(ctx context.Context, socialURL string) (*EnrichResponse, error)
}

// SearchRequest looks up a person by name and company.
type SearchRequest struct {
	FullName      string `json:"full_name,omitempty"`
	Company       string `json:"company,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	Email         string `json:"email,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// PersonHit is one search result.
type PersonHit struct {
	FullName      string `json:"full_name"`
	JobTitle      string `json:"job_title"`
	Company       string `json:"company"`
	CompanyDomain string `json:"company_domain"`
	LinkedInURL   string `json:"linkedin_url"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Error    bool        `json:"error"`
	Response []PersonHit `json:"response"`
}

// EnrichedPerson is a full enriched record.
type EnrichedPerson struct {
	FullName      string `json:"full_name"`
	JobTitle      string `json:"job_title"`
	Company       string `json:"company"`
	CompanyDomain string `json:"company_domain"`
	LinkedInURL   string `json:"linkedin_url"`
	Email         string `json:"email"`
	EmailStatus   string `json:"email_status"` // "VALID" | "UNKNOWN"
	MobilePhone   string `json:"mobile_phone"`
}

// EnrichResponse wraps one enriched person.
type EnrichResponse struct {
	Error    bool           `json:"error"`
	Response EnrichedPerson `json:"response"`
	Raw      []byte         `json:"-"`
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prospeo: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Prospeo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchPerson(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	respBody, err := c.post(ctx, "/person-search", req)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "prospeo: unmarshal search response")
	}
	return &result, nil
}

func (c *httpClient) Enrich(ctx context.Context, socialURL string) (*EnrichResponse, error) {
	respBody, err := c.post(ctx, "/social-url-enrichment", map[string]string{"url": socialURL})
	if err != nil {
		return nil, err
	}

	var result EnrichResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "prospeo: unmarshal enrich response")
	}
	result.Raw = respBody
	return &result, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := time.Duration(0)
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}
