// Package ingest pulls contact rosters and account lists into the engine
// from CRM exports and partner drops: HTTP and FTP sources, CSV and XLSX
// payloads. Parsed rows become identity queries for enrichment and company
// records for ranking.
package ingest

import (
	"context"
	"io"
)

// Fetcher downloads remote roster files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ConditionalFetcher extends Fetcher with ETag-based conditional downloads,
// used by scheduled re-imports to skip unchanged exports.
type ConditionalFetcher interface {
	Fetcher

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). When not changed, body is nil.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
