// Package search wires configuration, transports, sources and the aggregator
// behind the single Search operation used by every entrypoint.
package search

import (
	"context"
	"time"

	"carsearch-scraper/internal/aggregator"
	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"
	"carsearch-scraper/internal/sources"

	"github.com/sirupsen/logrus"
)

// Service owns the transports for the lifetime of the process
type Service struct {
	agg     *aggregator.Aggregator
	http    *scraper.HTTPClient
	browser *scraper.BrowserPool
	log     *logrus.Logger
}

// NewService builds the transports and the enabled sources from cfg.
func NewService(cfg config.Config, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Service{
		http: scraper.NewHTTPClient(cfg.Scrape, logger),
		log:  logger,
	}
	opts := sources.Options{
		Limit:    cfg.Aggregator.MaxListingsPerSource,
		MinPrice: cfg.Aggregator.MinPlausiblePrice,
		Logger:   logger,
	}

	var srcs []sources.Source
	if cfg.Sources.Craigslist {
		cities := cfg.Sources.CraigslistCities
		if n := cfg.Sources.CraigslistFanout; n > 0 && n < len(cities) {
			cities = cities[:n]
		}
		srcs = append(srcs, sources.NewCraigslist(s.http, cities, opts))
	}
	if cfg.Sources.Ebay {
		srcs = append(srcs, sources.NewEbay(s.http, opts))
	}
	if cfg.Sources.CarsCom && cfg.Browser.Enabled {
		s.browser = scraper.NewBrowserPool(scraper.BrowserOptionsFromConfig(cfg.Browser), logger)
		srcs = append(srcs, sources.NewCarsCom(s.browser, opts))
	}

	s.agg = aggregator.New(srcs, cfg.Aggregator, logger)
	return s
}

// NewServiceWithSources is used when the caller supplies its own adapters.
func NewServiceWithSources(srcs []sources.Source, cfg config.AggregatorConfig, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{agg: aggregator.New(srcs, cfg, logger), log: logger}
}

// SourceNames lists the configured sources in report order.
func (s *Service) SourceNames() []string {
	var names []string
	for _, src := range s.agg.Sources() {
		names = append(names, src.Name())
	}
	return names
}

// Search runs one aggregated search. Source failures are reported in the
// response, never returned as an error.
func (s *Service) Search(ctx context.Context, criteria models.SearchCriteria) models.SearchResponse {
	start := time.Now()
	res := s.agg.ScrapeAllSources(ctx, criteria)
	return models.SearchResponse{
		Success:         true,
		Listings:        res.Listings,
		Sources:         res.Sources,
		TotalCount:      res.TotalCount,
		UsingSampleData: res.UsingSampleData,
		Meta: models.Metadata{
			Total:      res.TotalCount,
			Params:     criteria,
			DurationMs: time.Since(start).Milliseconds(),
		},
	}
}

// Close stops the shared browser, if one was started.
func (s *Service) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
}
