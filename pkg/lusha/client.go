// Package lusha is a thin client for the Lusha prospecting API: contact
// search returning thin previews, then enrichment of selected contact IDs.
package lusha

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

const defaultBaseURL = "https://api.lusha.com"

// Client searches and enriches contacts.
type Client interface {
	SearchContacts(ctx context.Context, req ContactSearchRequest) (*ContactSearchResponse, error)
	EnrichContacts(ctx context.Context, requestID string, contactIDs []string) (*ContactEnrichResponse, error)
}

// ContactSearchRequest filters the prospecting contact search.
type ContactSearchRequest struct {
	Pages   Pages          `json:"pages"`
	Filters ContactFilters `json:"filters"`
}

// Pages selects a result window.
type Pages struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ContactFilters narrows contacts by name and current company.
type ContactFilters struct {
	FullName       string   `json:"fullName,omitempty"`
	CompanyNames   []string `json:"companyNames,omitempty"`
	CompanyDomains []string `json:"companyDomains,omitempty"`
	Emails         []string `json:"emails,omitempty"`
	LinkedInURL    string   `json:"linkedinUrl,omitempty"`
}

// ContactPreview is a thin search hit; contact details cost enrich credits.
type ContactPreview struct {
	ContactID   string `json:"contactId"`
	Name        string `json:"name"`
	JobTitle    string `json:"jobTitle"`
	CompanyName string `json:"companyName"`
	CompanyDomain string `json:"fqdn"`
	LinkedInURL string `json:"linkedinUrl"`
}

// ContactSearchResponse carries the previews plus the request ID required by
// the enrich call.
type ContactSearchResponse struct {
	RequestID string           `json:"requestId"`
	Contacts  []ContactPreview `json:"data"`
}

// EmailAddress is an enriched email.
type EmailAddress struct {
	Email           string `json:"email"`
	EmailType       string `json:"emailType"`       // "work" | "personal"
	EmailConfidence string `json:"emailConfidence"` // "a+" .. "c"
}

// PhoneNumber is an enriched phone.
type PhoneNumber struct {
	Number    string `json:"number"`
	PhoneType string `json:"phoneType"` // "mobile" | "work" | "direct_dial"
}

// EnrichedContact is the full record for one contact ID.
type EnrichedContact struct {
	ContactID     string         `json:"contactId"`
	Name          string         `json:"name"`
	JobTitle      string         `json:"jobTitle"`
	CompanyName   string         `json:"companyName"`
	CompanyDomain string         `json:"fqdn"`
	LinkedInURL   string         `json:"linkedinUrl"`
	Emails        []EmailAddress `json:"emailAddresses"`
	Phones        []PhoneNumber  `json:"phoneNumbers"`
}

// ContactEnrichResponse is the enrich call result.
type ContactEnrichResponse struct {
	Contacts []EnrichedContact `json:"contacts"`
	Raw      []byte            `json:"-"`
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lusha: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a Lusha API client.
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

func (c *httpClient) SearchContacts(ctx context.Context, req ContactSearchRequest) (*ContactSearchResponse, error) {
	if req.Pages.Size == 0 {
		req.Pages.Size = 10
	}

	respBody, err := c.post(ctx, "/prospecting/contact/search", req)
	if err != nil {
		return nil, err
	}

	var result ContactSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "lusha: unmarshal search response")
	}
	return &result, nil
}

func (c *httpClient) EnrichContacts(ctx context.Context, requestID string, contactIDs []string) (*ContactEnrichResponse, error) {
	req := map[string]any{
		"requestId":  requestID,
		"contactIds": contactIDs,
	}

	respBody, err := c.post(ctx, "/prospecting/contact/enrich", req)
	if err != nil {
		return nil, err
	}

	var result ContactEnrichResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "lusha: unmarshal enrich response")
	}
	result.Raw = respBody
	return &result, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "lusha: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "lusha: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "lusha: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "lusha: read response")
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
