// Package sources holds one adapter per marketplace. Each adapter builds the
// marketplace search URL, fetches it through a scraper transport and turns
// the markup into CarListings.
package sources

import (
	"context"
	"strings"
	"time"

	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"

	"github.com/sirupsen/logrus"
)

// TransportKind tells the aggregator whether a source shares the browser
type TransportKind string

const (
	TransportStatic   TransportKind = "static"
	TransportRendered TransportKind = "rendered"
)

// Source is a marketplace adapter. Scrape never panics on bad markup and
// reports transport failures through ScraperResult.Error.
type Source interface {
	Name() string
	Transport() TransportKind
	Scrape(ctx context.Context, criteria models.SearchCriteria) models.ScraperResult
}

// Options are shared by every adapter
type Options struct {
	Limit    int
	MinPrice int
	Logger   *logrus.Logger
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = scraper.DefaultListingLimit
	}
	if o.MinPrice <= 0 {
		o.MinPrice = scraper.DefaultMinPrice
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// rawListing is what an adapter pulled out of one listing node before normalization
type rawListing struct {
	NativeID   string
	Title      string
	Href       string
	PriceText  string
	Location   string
	PostedDate string
	Image      *string
	Mileage    *int
}

// normalizer turns raw nodes of one source into listings
type normalizer struct {
	source   string
	color    string
	idPrefix string
	opts     Options
}

func (n normalizer) build(raw rawListing, pageURL string, criteria models.SearchCriteria) scraper.Outcome {
	title := scraper.CleanText(raw.Title)
	if title == "" {
		return scraper.Skip(scraper.SkipMissingTitle, raw.Href)
	}
	if strings.TrimSpace(raw.Href) == "" {
		return scraper.Skip(scraper.SkipMissingLink, title)
	}
	listingURL, err := scraper.CleanListingURL(raw.Href, pageURL)
	if err != nil {
		return scraper.Skip(scraper.SkipInvalidURL, err.Error())
	}
	nativeID := raw.NativeID
	if nativeID == "" {
		nativeID = scraper.LastPathSegment(listingURL)
	}
	if nativeID == "" {
		return scraper.Skip(scraper.SkipMissingID, listingURL)
	}

	info := scraper.ParseTitle(title, n.opts.Now())

	listing := models.CarListing{
		ID:          n.idPrefix + "-" + nativeID,
		Title:       title,
		Price:       scraper.ParsePrice(raw.PriceText, n.opts.MinPrice),
		Year:        info.Year,
		Make:        info.Make,
		Model:       info.Model,
		Mileage:     info.Mileage,
		Location:    models.StringPtr(scraper.CleanText(raw.Location)),
		ImageURL:    raw.Image,
		ListingURL:  listingURL,
		Source:      n.source,
		SourceColor: n.color,
		PostedDate:  models.StringPtr(scraper.CleanText(raw.PostedDate)),
	}
	if raw.Mileage != nil {
		listing.Mileage = raw.Mileage
	}
	if criteria.MakeName != "" {
		listing.Make = models.StringPtr(scraper.CanonicalMake(criteria.MakeName))
	}
	if criteria.ModelName != "" {
		listing.Model = models.StringPtr(strings.TrimSpace(criteria.ModelName))
	}
	return scraper.Keep(listing)
}

// finish collects outcomes into the adapter result
func (n normalizer) finish(outcomes []scraper.Outcome) models.ScraperResult {
	collected := scraper.Collect(outcomes, n.opts.Limit)
	if skipped := collected.SkippedTotal(); skipped > 0 {
		fields := logrus.Fields{"source": n.source, "kept": len(collected.Listings)}
		for reason, count := range collected.Skipped {
			fields[string(reason)] = count
		}
		n.opts.Logger.WithFields(fields).Debug("skipped listing nodes")
	}
	return models.ScraperResult{Source: n.source, Listings: collected.Listings}
}

func (n normalizer) fail(err error) models.ScraperResult {
	n.opts.Logger.WithFields(logrus.Fields{"source": n.source, "category": models.ClassifyError(err)}).
		WithError(err).Warn("source fetch failed")
	return models.ScraperResult{
		Source:   n.source,
		Listings: []models.CarListing{},
		Error:    models.StatusMessage(n.source, err),
		Err:      err,
	}
}
