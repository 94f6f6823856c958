package aggregator

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/sample"
	"carsearch-scraper/internal/sources"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name      string
	transport sources.TransportKind
	listings  []models.CarListing
	err       error
	panicWith any
	delay     time.Duration
	onScrape  func()
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Transport() sources.TransportKind {
	if f.transport == "" {
		return sources.TransportStatic
	}
	return f.transport
}

func (f *fakeSource) Scrape(ctx context.Context, criteria models.SearchCriteria) models.ScraperResult {
	if f.onScrape != nil {
		f.onScrape()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	res := models.ScraperResult{Source: f.name, Listings: f.listings, Err: f.err}
	if res.Listings == nil {
		res.Listings = []models.CarListing{}
	}
	return res
}

func priced(id string, price *int) models.CarListing {
	return models.CarListing{ID: id, Title: id, Price: price, ListingURL: "https://example.com/" + id}
}

func testConfig() config.AggregatorConfig {
	cfg := config.DefaultAggregatorConfig()
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestAggregator(srcs []sources.Source, cfg config.AggregatorConfig) *Aggregator {
	logger, _ := test.NewNullLogger()
	return New(srcs, cfg, logger)
}

func TestScrapeAllSourcesMergesAndSorts(t *testing.T) {
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "A", listings: []models.CarListing{
			priced("a1", models.IntPtr(15000)),
			priced("a2", nil),
			priced("a3", models.IntPtr(9000)),
		}},
		&fakeSource{name: "B", listings: []models.CarListing{
			priced("b1", models.IntPtr(12000)),
			priced("b2", nil),
		}},
	}, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})

	ids := make([]string, 0, len(res.Listings))
	for _, l := range res.Listings {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"a3", "b1", "a1", "a2", "b2"}, ids)
	assert.Equal(t, 5, res.TotalCount)
	assert.False(t, res.UsingSampleData)
	assert.Equal(t, []models.SourceStatus{{Name: "A", Count: 3}, {Name: "B", Count: 2}}, res.Sources)
}

func TestScrapeAllSourcesDropsRepeatedIDs(t *testing.T) {
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "A", listings: []models.CarListing{priced("x", models.IntPtr(1000))}},
		&fakeSource{name: "B", listings: []models.CarListing{priced("x", models.IntPtr(1000)), priced("y", nil)}},
	}, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 1, res.Sources[1].Count)
}

func TestScrapeAllSourcesIsolatesPanics(t *testing.T) {
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "Broken", panicWith: "index out of range"},
		&fakeSource{name: "Fine", listings: []models.CarListing{priced("f1", models.IntPtr(8000))}},
	}, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "Broken", res.Sources[0].Name)
	assert.Zero(t, res.Sources[0].Count)
	assert.Contains(t, res.Sources[0].Error, "Broken failed unexpectedly")
	assert.Equal(t, models.SourceStatus{Name: "Fine", Count: 1}, res.Sources[1])
	assert.Len(t, res.Listings, 1)
}

func TestScrapeAllSourcesReportsErrors(t *testing.T) {
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "Blocked", err: &models.ChallengeError{Domain: "example.com", Marker: "captcha"}},
		&fakeSource{name: "Fine", listings: []models.CarListing{priced("f1", models.IntPtr(8000))}},
	}, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Equal(t, "Blocked requires verification - visit the site directly", res.Sources[0].Error)
	assert.False(t, res.UsingSampleData)
}

func TestScrapeAllSourcesFallsBackToSample(t *testing.T) {
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "A"},
		&fakeSource{name: "B", err: &models.FetchError{StatusCode: 503, URL: "https://example.com"}},
	}, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.True(t, res.UsingSampleData)
	assert.Equal(t, sample.Size, res.TotalCount)
	for _, l := range res.Listings {
		assert.Equal(t, sample.SourceName, l.Source)
	}
	// statuses still describe the real sources
	require.Len(t, res.Sources, 2)
	assert.Zero(t, res.Sources[0].Count)
	assert.NotEmpty(t, res.Sources[1].Error)
}

func TestScrapeAllSourcesSampleDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SampleOnEmpty = false
	a := newTestAggregator([]sources.Source{&fakeSource{name: "A"}}, cfg)

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.False(t, res.UsingSampleData)
	require.NotNil(t, res.Listings)
	assert.Empty(t, res.Listings)
}

func TestScrapeAllSourcesTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "Fast", listings: []models.CarListing{priced("f1", models.IntPtr(5000))}},
		&fakeSource{name: "Slow", delay: 500 * time.Millisecond, listings: []models.CarListing{priced("s1", nil)}},
	}, cfg)
	a.cfg.Mode = config.ModeParallel

	started := time.Now()
	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Less(t, time.Since(started), 400*time.Millisecond)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, models.SourceStatus{Name: "Fast", Count: 1}, res.Sources[0])
	assert.Equal(t, models.SourceStatus{Name: "Slow", Error: "Slow timed out"}, res.Sources[1])
	assert.Equal(t, 1, res.TotalCount)
}

func TestScrapeAllSourcesNoSources(t *testing.T) {
	a := newTestAggregator(nil, testConfig())
	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Empty(t, res.Sources)
	assert.True(t, res.UsingSampleData)
}

func TestPlan(t *testing.T) {
	srcs := []sources.Source{
		&fakeSource{name: "s0"},
		&fakeSource{name: "r1", transport: sources.TransportRendered},
		&fakeSource{name: "s2"},
		&fakeSource{name: "r3", transport: sources.TransportRendered},
	}

	tests := []struct {
		mode string
		want [][]int
	}{
		{config.ModeSerializeShared, [][]int{{0}, {2}, {1, 3}}},
		{config.ModeParallel, [][]int{{0}, {1}, {2}, {3}}},
		{config.ModeSequential, [][]int{{0, 1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := testConfig()
			cfg.Mode = tt.mode
			if diff := cmp.Diff(tt.want, newTestAggregator(srcs, cfg).plan()); diff != "" {
				t.Errorf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.Empty(t, newTestAggregator(nil, testConfig()).plan())
}

func TestSerializeSharedNeverOverlapsRenderedSources(t *testing.T) {
	var active, peak atomic.Int32
	track := func() {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}

	var srcs []sources.Source
	for _, name := range []string{"r1", "r2", "r3"} {
		srcs = append(srcs, &fakeSource{name: name, transport: sources.TransportRendered, onScrape: track})
	}
	a := newTestAggregator(srcs, testConfig())

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Len(t, res.Sources, 3)
	assert.Equal(t, int32(1), peak.Load())
}

func TestParallelRunsSourcesConcurrently(t *testing.T) {
	// each source waits for the other; only concurrent dispatch can finish
	var barrier sync.WaitGroup
	barrier.Add(2)
	meet := func() {
		barrier.Done()
		barrier.Wait()
	}

	cfg := testConfig()
	cfg.Mode = config.ModeParallel
	a := newTestAggregator([]sources.Source{
		&fakeSource{name: "r1", transport: sources.TransportRendered, onScrape: meet, listings: []models.CarListing{priced("a", nil)}},
		&fakeSource{name: "r2", transport: sources.TransportRendered, onScrape: meet, listings: []models.CarListing{priced("b", nil)}},
	}, cfg)

	res := a.ScrapeAllSources(context.Background(), models.SearchCriteria{})
	assert.Equal(t, 2, res.TotalCount)
	for _, s := range res.Sources {
		assert.Empty(t, s.Error)
	}
}

func TestSortByPrice(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		listings := make([]models.CarListing, 30)
		for i := range listings {
			var price *int
			if rng.Intn(4) > 0 {
				price = models.IntPtr(rng.Intn(10) * 1000)
			}
			listings[i] = priced(string(rune('a'+i%26))+string(rune('0'+i/26)), price)
		}
		input := append([]models.CarListing(nil), listings...)

		SortByPrice(listings)

		require.Len(t, listings, len(input))
		seenNil := false
		for i, l := range listings {
			if l.Price == nil {
				seenNil = true
				continue
			}
			require.False(t, seenNil, "priced listing after unpriced one")
			if i > 0 && listings[i-1].Price != nil {
				require.LessOrEqual(t, *listings[i-1].Price, *l.Price)
			}
		}

		// equal prices keep input order
		pos := map[string]int{}
		for i, l := range input {
			pos[l.ID] = i
		}
		for i := 1; i < len(listings); i++ {
			prev, cur := listings[i-1], listings[i]
			samePrice := (prev.Price == nil && cur.Price == nil) ||
				(prev.Price != nil && cur.Price != nil && *prev.Price == *cur.Price)
			if samePrice {
				require.Less(t, pos[prev.ID], pos[cur.ID])
			}
		}
	}
}
