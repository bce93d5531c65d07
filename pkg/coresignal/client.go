// Package coresignal is a thin client for the CoreSignal multi-source
// employee API: filter search returning preview records, and per-employee
// collection of the full profile.
package coresignal

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

const defaultBaseURL = "https://api.coresignal.com/cdapi/v2"

// Client searches and collects employee records.
type Client interface {
	SearchEmployees(ctx context.Context, filter SearchFilter) ([]EmployeePreview, error)
	CollectEmployee(ctx context.Context, id string) (*Employee, error)
}

// SearchFilter narrows an employee search. Empty fields are omitted.
type SearchFilter struct {
	FullName       string `json:"full_name,omitempty"`
	CompanyName    string `json:"experience_company_name,omitempty"`
	CompanyWebsite string `json:"experience_company_website,omitempty"`
	LinkedInURL    string `json:"linkedin_url,omitempty"`
	Email          string `json:"email,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// EmployeePreview is the thin record returned by filter search.
type EmployeePreview struct {
	ID             int64  `json:"id"`
	FullName       string `json:"full_name"`
	JobTitle       string `json:"job_title"`
	CompanyName    string `json:"company_name"`
	CompanyWebsite string `json:"company_website"`
	LinkedInURL    string `json:"linkedin_url"`
}

// EmployeeEmail is an email on a collected profile.
type EmployeeEmail struct {
	Address    string `json:"professional_email,omitempty"`
	Type       string `json:"type,omitempty"` // "professional" | "personal"
	Status     string `json:"status,omitempty"`
	IsVerified bool   `json:"is_verified"`
}

// EmployeePhone is a phone number on a collected profile.
type EmployeePhone struct {
	Number string `json:"phone_number"`
	Type   string `json:"type,omitempty"` // "mobile" | "work" | "direct_dial"
}

// Employee is the full multi-source profile.
type Employee struct {
	ID             int64           `json:"id"`
	FullName       string          `json:"full_name"`
	JobTitle       string          `json:"job_title"`
	CompanyName    string          `json:"company_name"`
	CompanyWebsite string          `json:"company_website"`
	LinkedInURL    string          `json:"linkedin_url"`
	Emails         []EmployeeEmail `json:"emails"`
	Phones         []EmployeePhone `json:"phones"`
	UpdatedAt      string          `json:"last_updated"`

	// Raw holds the unparsed response body for audit.
	Raw []byte `json:"-"`
}

// StatusError is a non-2xx API response. RetryAfter is parsed from the
// Retry-After header when present.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coresignal: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a CoreSignal API client.
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

func (c *httpClient) SearchEmployees(ctx context.Context, filter SearchFilter) ([]EmployeePreview, error) {
	body, err := json.Marshal(filter)
	if err != nil {
		return nil, eris.Wrap(err, "coresignal: marshal filter")
	}

	respBody, err := c.do(ctx, http.MethodPost, "/employee_multi_source/search/filter", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var previews []EmployeePreview
	if err := json.Unmarshal(respBody, &previews); err != nil {
		return nil, eris.Wrap(err, "coresignal: unmarshal search response")
	}
	return previews, nil
}

func (c *httpClient) CollectEmployee(ctx context.Context, id string) (*Employee, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/employee_multi_source/collect/"+id, nil)
	if err != nil {
		return nil, err
	}

	var emp Employee
	if err := json.Unmarshal(respBody, &emp); err != nil {
		return nil, eris.Wrap(err, "coresignal: unmarshal collect response")
	}
	emp.Raw = respBody
	return &emp, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "coresignal: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "coresignal: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "coresignal: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
