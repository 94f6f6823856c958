package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"

	"github.com/PuerkitoBio/goquery"
)

const (
	CarsComName  = "Cars.com"
	CarsComColor = "#8534d4"

	carsComCardSelector = "div.vehicle-card"
)

var carsComDetailID = regexp.MustCompile(`/vehicledetail/([^/?#]+)`)

// CarsCom renders the Cars.com results page in the shared headless browser;
// listing cards are injected client-side.
type CarsCom struct {
	renderer scraper.PageRenderer
	norm     normalizer

	BaseURL string
}

func NewCarsCom(renderer scraper.PageRenderer, opts Options) *CarsCom {
	opts = opts.withDefaults()
	return &CarsCom{
		renderer: renderer,
		norm:     normalizer{source: CarsComName, color: CarsComColor, idPrefix: "carscom", opts: opts},
		BaseURL:  "https://www.cars.com/shopping/results/",
	}
}

func (c *CarsCom) Name() string             { return CarsComName }
func (c *CarsCom) Transport() TransportKind { return TransportRendered }

// SearchURL builds the Cars.com results URL
func (c *CarsCom) SearchURL(criteria models.SearchCriteria) string {
	q := url.Values{}
	switch criteria.Condition {
	case models.ConditionNew:
		q.Set("stock_type", "new")
	case models.ConditionAll:
		q.Set("stock_type", "all")
	default:
		q.Set("stock_type", "used")
	}
	makeSlug := slug(scraper.CanonicalMake(criteria.MakeName))
	if makeSlug != "" {
		q.Set("makes[]", makeSlug)
		if modelSlug := slug(criteria.ModelName); modelSlug != "" {
			q.Set("models[]", makeSlug+"-"+modelSlug)
		}
	}
	setInt(q, "year_min", criteria.YearMin)
	setInt(q, "year_max", criteria.YearMax)
	setInt(q, "price_min", criteria.PriceMin)
	setInt(q, "price_max", criteria.PriceMax)
	setInt(q, "mileage_max", criteria.MileageMax)
	if criteria.ZipCode != "" {
		q.Set("zip", criteria.ZipCode)
		setInt(q, "maximum_distance", criteria.Radius)
	}
	return c.BaseURL + "?" + q.Encode()
}

func (c *CarsCom) Scrape(ctx context.Context, criteria models.SearchCriteria) models.ScraperResult {
	searchURL := c.SearchURL(criteria)
	res, err := c.renderer.Render(ctx, searchURL, scraper.RenderOptions{
		WaitSelector: carsComCardSelector,
		WaitTimeout:  scraper.ListingWaitTimeout,
	})
	if err != nil {
		return c.norm.fail(err)
	}

	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = searchURL
	}
	outcomes, err := c.Parse(res.Body, pageURL, criteria)
	if err != nil {
		return c.norm.fail(err)
	}
	return c.norm.finish(outcomes)
}

// Parse extracts one outcome per vehicle card of a rendered Cars.com page.
func (c *CarsCom) Parse(body, pageURL string, criteria models.SearchCriteria) ([]scraper.Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var outcomes []scraper.Outcome
	doc.Find(carsComCardSelector).Each(func(_ int, s *goquery.Selection) {
		outcomes = append(outcomes, scraper.Extract(func() scraper.Outcome {
			href := s.Find("a.vehicle-card-link, a[href*='/vehicledetail/']").First().AttrOr("href", "")

			nativeID := s.AttrOr("data-listing-id", "")
			if nativeID == "" {
				if m := carsComDetailID.FindStringSubmatch(href); m != nil {
					nativeID = m[1]
				}
			}

			location := s.Find(".miles-from, .dealer-name").First().Text()
			raw := rawListing{
				NativeID:  nativeID,
				Title:     s.Find("h2.title, .title").First().Text(),
				Href:      href,
				PriceText: s.Find(".primary-price").First().Text(),
				Location:  location,
				Image:     scraper.ImageFromSelection(s.Find("img.vehicle-image, img").First(), pageURL),
				Mileage:   scraper.ParseMileage(s.Find(".mileage").First().Text()),
			}
			return c.norm.build(raw, pageURL, criteria)
		}))
	})
	return outcomes, nil
}

// slug lowercases a display name and joins words with underscores ("Land Rover" -> "land_rover")
func slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}
