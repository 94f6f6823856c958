package sources

import (
	"context"
	"sync"
	"time"

	"carsearch-scraper/internal/scraper"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var (
	_ Source = (*Craigslist)(nil)
	_ Source = (*Ebay)(nil)
	_ Source = (*CarsCom)(nil)
)

type fetchCall struct {
	url  string
	opts scraper.FetchOptions
}

// fakeFetcher answers every Fetch through fn and records the calls.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(url string) (*scraper.FetchResult, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, opts scraper.FetchOptions) (*scraper.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{url: url, opts: opts})
	f.mu.Unlock()
	return f.fn(url)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func staticPage(body string) func(string) (*scraper.FetchResult, error) {
	return func(url string) (*scraper.FetchResult, error) {
		return &scraper.FetchResult{URL: url, FinalURL: url, StatusCode: 200, Body: body}, nil
	}
}

type fakeRenderer struct {
	url  string
	opts scraper.RenderOptions
	res  *scraper.FetchResult
	err  error
}

func (f *fakeRenderer) Render(_ context.Context, url string, opts scraper.RenderOptions) (*scraper.FetchResult, error) {
	f.url = url
	f.opts = opts
	return f.res, f.err
}

func testOptions() (Options, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return Options{
		Logger: logger,
		Now:    func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}, hook
}
