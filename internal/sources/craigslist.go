package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	CraigslistName  = "Craigslist"
	CraigslistColor = "#5b2d8e"

	craigslistResultSelector = "li.cl-static-search-result, li.cl-search-result"
)

// Craigslist searches the cars+trucks category of several city sites at once
type Craigslist struct {
	fetcher scraper.StaticFetcher
	cities  []string
	norm    normalizer

	// URLFormat takes the city subdomain; overridable for tests
	URLFormat string
}

func NewCraigslist(fetcher scraper.StaticFetcher, cities []string, opts Options) *Craigslist {
	opts = opts.withDefaults()
	return &Craigslist{
		fetcher:   fetcher,
		cities:    cities,
		norm:      normalizer{source: CraigslistName, color: CraigslistColor, idPrefix: "craigslist", opts: opts},
		URLFormat: "https://%s.craigslist.org/search/cta",
	}
}

func (c *Craigslist) Name() string             { return CraigslistName }
func (c *Craigslist) Transport() TransportKind { return TransportStatic }

// SearchURL builds the search URL for one city
func (c *Craigslist) SearchURL(city string, criteria models.SearchCriteria) string {
	q := url.Values{}
	if kw := criteria.Keywords(); kw != "" {
		q.Set("query", kw)
	}
	setInt(q, "min_auto_year", criteria.YearMin)
	setInt(q, "max_auto_year", criteria.YearMax)
	setInt(q, "min_price", criteria.PriceMin)
	setInt(q, "max_price", criteria.PriceMax)
	setInt(q, "max_auto_miles", criteria.MileageMax)
	if criteria.ZipCode != "" {
		q.Set("postal", criteria.ZipCode)
		setInt(q, "search_distance", criteria.Radius)
	}
	return fmt.Sprintf(c.URLFormat, city) + "?" + q.Encode()
}

type cityPage struct {
	city     string
	outcomes []scraper.Outcome
	err      error
}

// Scrape queries every configured city concurrently. A failing city is
// skipped; the result carries an error only when all of them failed.
func (c *Craigslist) Scrape(ctx context.Context, criteria models.SearchCriteria) models.ScraperResult {
	if len(c.cities) == 0 {
		return c.norm.finish(nil)
	}

	pages := make([]cityPage, len(c.cities))
	var g errgroup.Group
	for i, city := range c.cities {
		g.Go(func() error {
			// a panic here would escape the caller's recover
			defer func() {
				if r := recover(); r != nil {
					pages[i] = cityPage{city: city, err: &models.CrashError{Source: CraigslistName, Value: r}}
				}
			}()
			pages[i] = c.scrapeCity(ctx, city, criteria)
			return nil
		})
	}
	_ = g.Wait()

	var outcomes []scraper.Outcome
	var firstErr error
	failed := 0
	for _, p := range pages {
		if p.err != nil {
			failed++
			if firstErr == nil {
				firstErr = p.err
			}
			c.norm.opts.Logger.WithFields(logrus.Fields{"source": CraigslistName, "city": p.city}).
				WithError(p.err).Debug("city search failed")
			continue
		}
		outcomes = append(outcomes, p.outcomes...)
	}
	if failed == len(pages) {
		return c.norm.fail(firstErr)
	}
	return c.norm.finish(outcomes)
}

func (c *Craigslist) scrapeCity(ctx context.Context, city string, criteria models.SearchCriteria) cityPage {
	searchURL := c.SearchURL(city, criteria)
	res, err := c.fetcher.Fetch(ctx, searchURL, scraper.FetchOptions{FollowRedirects: true})
	if err != nil {
		return cityPage{city: city, err: err}
	}
	outcomes, err := c.Parse(res.Body, city, searchURL, criteria)
	return cityPage{city: city, outcomes: outcomes, err: err}
}

// Parse extracts one outcome per result node of a Craigslist search page.
func (c *Craigslist) Parse(body, city, pageURL string, criteria models.SearchCriteria) ([]scraper.Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var outcomes []scraper.Outcome
	doc.Find(craigslistResultSelector).Each(func(_ int, s *goquery.Selection) {
		outcomes = append(outcomes, scraper.Extract(func() scraper.Outcome {
			link := s.Find("a[href]").First()
			href, _ := link.Attr("href")

			title := s.Find(".title, .label, a.posting-title").First().Text()
			if strings.TrimSpace(title) == "" {
				title, _ = s.Attr("title")
			}

			location := s.Find(".location, .meta .location").First().Text()
			if strings.TrimSpace(location) == "" {
				location = city
			}

			raw := rawListing{
				NativeID:   s.AttrOr("data-pid", ""),
				Title:      title,
				Href:       href,
				PriceText:  s.Find(".price, .priceinfo").First().Text(),
				Location:   location,
				PostedDate: s.Find("time, .date").First().AttrOr("datetime", ""),
				Image:      scraper.ImageFromSelection(s.Find("img").First(), pageURL),
			}
			return c.norm.build(raw, pageURL, criteria)
		}))
	})
	return outcomes, nil
}

func setInt(q url.Values, key string, v int) {
	if v > 0 {
		q.Set(key, strconv.Itoa(v))
	}
}
