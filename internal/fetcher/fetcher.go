// Package fetcher retrieves a source URL's visible text. It is a narrow
// external-collaborator contract per spec.md §1 ("fetch URL → plain text
// <= N bytes") — HTMLFetcher ships one concrete, intentionally minimal
// implementation; a production deployment may swap in a richer
// extractor behind the same interface.
package fetcher

import "context"

// Fetcher retrieves the visible text of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (text string, err error)
}
