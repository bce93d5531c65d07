package model

import "time"

// EnrichmentRun is the audit record of one waterfall resolution: which
// providers ran, what they cost, and what came back.
type EnrichmentRun struct {
	ID             string    `json:"id"`
	QueryKey       string    `json:"query_key"`
	ContactID      string    `json:"contact_id,omitempty"`
	Providers      []string  `json:"providers"`
	SearchCredits  int       `json:"search_credits"`
	CollectCredits int       `json:"collect_credits"`
	Confidence     float64   `json:"confidence"`
	LowConfidence  bool      `json:"low_confidence"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
