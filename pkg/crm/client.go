// Package crm pushes resolved contacts, buyer-group roles, and ranks back
// into Salesforce, keyed by engine-owned external IDs.
package crm

import (
	"context"
	"fmt"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Salesforce API collection calls accept at most 200 records per batch.
const maxBatchSize = 200

// Client defines the Salesforce operations the sync uses.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	UpsertCollection(ctx context.Context, sObjectName string, externalIDField string, records []map[string]any) ([]UpsertResult, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// UpsertResult is the outcome of one record in a collection upsert.
type UpsertResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for Salesforce API calls.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: go-salesforce does not accept context.Context, so the ctx parameter
// only governs the rate limiter wait; the API call itself cannot be
// cancelled mid-flight.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "crm: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "crm: query")
	}
	return nil
}

func (c *sfClient) UpsertCollection(ctx context.Context, sObjectName string, externalIDField string, records []map[string]any) ([]UpsertResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "crm: rate limit")
	}
	sfResults, err := c.sf.UpsertCollection(sObjectName, externalIDField, records, maxBatchSize)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("crm: upsert collection %s", sObjectName))
	}

	results := make([]UpsertResult, len(sfResults.Results))
	for i, r := range sfResults.Results {
		var errs []string
		for _, e := range r.Errors {
			errs = append(errs, e.Message)
		}
		results[i] = UpsertResult{
			ID:      r.Id,
			Success: r.Success,
			Errors:  errs,
		}
	}
	return results, nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "crm: rate limit")
	}
	fields["Id"] = id
	if err := c.sf.UpdateOne(sObjectName, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("crm: update %s %s", sObjectName, id))
	}
	return nil
}
