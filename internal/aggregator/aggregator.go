// Package aggregator fans a search out to every configured source and merges
// their listings into one price-ordered result with a status per source.
package aggregator

import (
	"context"
	"sort"
	"time"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/sample"
	"carsearch-scraper/internal/sources"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Aggregator runs sources according to its execution mode
type Aggregator struct {
	sources  []sources.Source
	cfg      config.AggregatorConfig
	log      *logrus.Logger
	tracer   trace.Tracer
	fallback func(models.SearchCriteria) []models.CarListing
}

func New(srcs []sources.Source, cfg config.AggregatorConfig, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeSerializeShared
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultAggregatorConfig().Timeout
	}
	return &Aggregator{
		sources:  srcs,
		cfg:      cfg,
		log:      logger,
		tracer:   otel.Tracer("carsearch-scraper/aggregator"),
		fallback: sample.Listings,
	}
}

// Sources returns the configured sources in report order.
func (a *Aggregator) Sources() []sources.Source {
	return a.sources
}

type slot struct {
	index  int
	result models.ScraperResult
}

// ScrapeAllSources queries every source and merges the results. It always
// returns one status per source: a source that panicked or did not finish
// before the aggregate timeout is reported with count 0 and an error.
func (a *Aggregator) ScrapeAllSources(ctx context.Context, criteria models.SearchCriteria) models.AggregatedResult {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	results := make([]*models.ScraperResult, len(a.sources))
	done := make(chan slot, len(a.sources))

	for _, group := range a.plan() {
		go func(group []int) {
			for _, i := range group {
				if ctx.Err() != nil {
					return
				}
				done <- slot{index: i, result: a.runSource(ctx, a.sources[i], criteria)}
			}
		}(group)
	}

	received := 0
wait:
	for received < len(a.sources) {
		select {
		case s := <-done:
			results[s.index] = &s.result
			received++
		case <-ctx.Done():
			break wait
		}
	}

	out := a.merge(results, criteria)
	a.log.WithFields(logrus.Fields{
		"mode":        a.cfg.Mode,
		"total":       out.TotalCount,
		"sample_data": out.UsingSampleData,
		"duration":    time.Since(start),
	}).Info("aggregation finished")
	return out
}

// plan groups source indexes; each group runs sequentially in its own goroutine.
func (a *Aggregator) plan() [][]int {
	var groups [][]int
	switch a.cfg.Mode {
	case config.ModeSequential:
		all := make([]int, len(a.sources))
		for i := range a.sources {
			all[i] = i
		}
		if len(all) > 0 {
			groups = append(groups, all)
		}
	case config.ModeParallel:
		for i := range a.sources {
			groups = append(groups, []int{i})
		}
	default:
		var rendered []int
		for i, s := range a.sources {
			if s.Transport() == sources.TransportRendered {
				rendered = append(rendered, i)
				continue
			}
			groups = append(groups, []int{i})
		}
		if len(rendered) > 0 {
			groups = append(groups, rendered)
		}
	}
	return groups
}

func (a *Aggregator) runSource(ctx context.Context, src sources.Source, criteria models.SearchCriteria) (res models.ScraperResult) {
	name := src.Name()
	ctx, span := a.tracer.Start(ctx, "aggregator.source", trace.WithAttributes(attribute.String("source.name", name)))
	started := time.Now()

	defer func() {
		span.SetAttributes(attribute.Int("listings.count", len(res.Listings)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
		a.log.WithFields(logrus.Fields{
			"source":   name,
			"count":    len(res.Listings),
			"error":    res.Error,
			"duration": time.Since(started),
		}).Debug("source finished")
	}()

	defer func() {
		if r := recover(); r != nil {
			err := &models.CrashError{Source: name, Value: r}
			a.log.WithFields(logrus.Fields{"source": name, "panic": r}).Error("source crashed")
			res = models.ScraperResult{
				Source:   name,
				Listings: []models.CarListing{},
				Error:    models.StatusMessage(name, err),
				Err:      err,
			}
		}
	}()

	res = src.Scrape(ctx, criteria)
	res.Source = name
	if res.Error == "" && res.Err != nil {
		res.Error = models.StatusMessage(name, res.Err)
	}
	return res
}

func (a *Aggregator) merge(results []*models.ScraperResult, criteria models.SearchCriteria) models.AggregatedResult {
	out := models.AggregatedResult{
		Listings: []models.CarListing{},
		Sources:  make([]models.SourceStatus, 0, len(a.sources)),
	}
	seen := make(map[string]bool)

	for i, src := range a.sources {
		res := results[i]
		if res == nil {
			err := &models.TimeoutError{Operation: "scrape " + src.Name(), Timeout: a.cfg.Timeout, Err: context.DeadlineExceeded}
			a.log.WithField("source", src.Name()).Warn("source did not finish before aggregate timeout")
			out.Sources = append(out.Sources, models.SourceStatus{
				Name:  src.Name(),
				Error: models.StatusMessage(src.Name(), err),
			})
			continue
		}

		count := 0
		for _, l := range res.Listings {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			out.Listings = append(out.Listings, l)
			count++
		}
		out.Sources = append(out.Sources, models.SourceStatus{Name: src.Name(), Count: count, Error: res.Error})
	}

	if len(out.Listings) == 0 && a.cfg.SampleOnEmpty && a.fallback != nil {
		out.Listings = a.fallback(criteria)
		out.UsingSampleData = true
	}

	SortByPrice(out.Listings)
	out.TotalCount = len(out.Listings)
	return out
}

// SortByPrice orders listings by ascending price with unpriced listings last.
// Ties keep their input order.
func SortByPrice(listings []models.CarListing) {
	sort.SliceStable(listings, func(i, j int) bool {
		pi, pj := listings[i].Price, listings[j].Price
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})
}
