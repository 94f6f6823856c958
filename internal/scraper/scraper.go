// Package scraper provides the fetch transports and the shared listing
// extraction utilities used by every source adapter.
package scraper

import (
	"context"
	"time"
)

// FetchResult is raw markup plus the response metadata adapters need
type FetchResult struct {
	URL             string
	FinalURL        string
	StatusCode      int
	Body            string
	Challenge       bool
	ChallengeMarker string
	FromCache       bool
}

// FetchOptions tunes a single static fetch
type FetchOptions struct {
	// FollowRedirects disabled turns any 3xx into a challenge signal
	FollowRedirects bool
	// ChallengeMarkers adds source-specific markers to ChallengeMarkers
	ChallengeMarkers []string
	Headers          map[string]string
	SkipCache        bool
}

// RenderOptions tunes a single rendered fetch
type RenderOptions struct {
	// WaitSelector is awaited for at most WaitTimeout; expiry is not an error
	WaitSelector     string
	WaitTimeout      time.Duration
	Timeout          time.Duration
	ChallengeMarkers []string
}

// StaticFetcher is implemented by HTTPClient
type StaticFetcher interface {
	Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResult, error)
}

// PageRenderer is implemented by BrowserPool
type PageRenderer interface {
	Render(ctx context.Context, targetURL string, opts RenderOptions) (*FetchResult, error)
}
