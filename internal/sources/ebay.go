package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"

	"github.com/PuerkitoBio/goquery"
)

const (
	EbayName  = "eBay Motors"
	EbayColor = "#e53238"

	ebayVerificationMessage = "eBay requires verification - use redirect link"
	ebayCardSelector        = "li.s-item, div.s-item, li.s-card"
)

var (
	ebayItemID = regexp.MustCompile(`/itm/(?:[^/?#]+/)?(\d+)`)

	// ebay serves its bot check from a splash page
	ebayChallengeMarkers = []string{"splashui", "captcha", "/challenge"}
)

// Ebay searches the eBay Motors cars and trucks category. Redirects are not
// followed: eBay answers suspected bots with a 302/307 to its challenge page.
type Ebay struct {
	fetcher scraper.StaticFetcher
	norm    normalizer

	BaseURL string
}

func NewEbay(fetcher scraper.StaticFetcher, opts Options) *Ebay {
	opts = opts.withDefaults()
	return &Ebay{
		fetcher: fetcher,
		norm:    normalizer{source: EbayName, color: EbayColor, idPrefix: "ebay", opts: opts},
		BaseURL: "https://www.ebay.com/sch/Cars-Trucks/6001/i.html",
	}
}

func (e *Ebay) Name() string             { return EbayName }
func (e *Ebay) Transport() TransportKind { return TransportStatic }

// SearchURL builds the eBay Motors search URL
func (e *Ebay) SearchURL(criteria models.SearchCriteria) string {
	q := url.Values{}
	if kw := criteria.Keywords(); kw != "" {
		q.Set("_nkw", kw)
	}
	q.Set("_sacat", "6001")
	switch criteria.Condition {
	case models.ConditionNew:
		q.Set("LH_ItemCondition", "1000")
	case models.ConditionAll:
	default:
		q.Set("LH_ItemCondition", "3000")
	}
	q.Set("_sop", "12")
	setInt(q, "_udlo", criteria.PriceMin)
	setInt(q, "_udhi", criteria.PriceMax)
	if criteria.ZipCode != "" {
		q.Set("_stpos", criteria.ZipCode)
		setInt(q, "_sadis", criteria.Radius)
	}
	return e.BaseURL + "?" + q.Encode()
}

func (e *Ebay) Scrape(ctx context.Context, criteria models.SearchCriteria) models.ScraperResult {
	searchURL := e.SearchURL(criteria)
	res, err := e.fetcher.Fetch(ctx, searchURL, scraper.FetchOptions{
		FollowRedirects:  false,
		ChallengeMarkers: ebayChallengeMarkers,
	})
	if err != nil {
		var ce *models.ChallengeError
		if errors.As(err, &ce) {
			ce.Message = ebayVerificationMessage
		}
		return e.norm.fail(err)
	}

	outcomes, err := e.Parse(res.Body, searchURL, criteria)
	if err != nil {
		return e.norm.fail(err)
	}
	return e.norm.finish(outcomes)
}

// Parse extracts one outcome per item card of an eBay search page.
func (e *Ebay) Parse(body, pageURL string, criteria models.SearchCriteria) ([]scraper.Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var outcomes []scraper.Outcome
	doc.Find(ebayCardSelector).Each(func(_ int, s *goquery.Selection) {
		outcomes = append(outcomes, scraper.Extract(func() scraper.Outcome {
			return e.parseCard(s, pageURL, criteria)
		}))
	})
	return outcomes, nil
}

func (e *Ebay) parseCard(s *goquery.Selection, pageURL string, criteria models.SearchCriteria) scraper.Outcome {
	href := s.Find("a.s-item__link, a.su-link, a.s-card__link").First().AttrOr("href", "")
	if strings.Contains(href, "pulsar") {
		return scraper.Skip(scraper.SkipNotAListing, "sponsored pulsar link")
	}

	titleSel := s.Find(".s-item__title, .s-card__title").First()
	titleSel.Find(".LIGHT_HIGHLIGHT, .clipped").Remove()
	title := scraper.CleanWhitespace(titleSel.Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "New Listing"))
	if strings.EqualFold(title, "Shop on eBay") {
		return scraper.Skip(scraper.SkipNotAListing, "placeholder card")
	}

	var nativeID string
	if m := ebayItemID.FindStringSubmatch(href); m != nil {
		nativeID = m[1]
	} else if href != "" {
		return scraper.Skip(scraper.SkipMissingID, href)
	}

	location := s.Find(".s-item__location, .s-item__itemLocation").First().Text()
	location = strings.TrimSpace(location)
	if len(location) >= 5 && strings.EqualFold(location[:5], "from ") {
		location = location[5:]
	}

	priceText := strings.Fields(s.Find(".s-item__price, .s-card__price").First().Text())
	var price string
	if len(priceText) > 0 {
		price = priceText[0]
	}

	raw := rawListing{
		NativeID:   nativeID,
		Title:      title,
		Href:       scraper.StripQuery(href),
		PriceText:  price,
		Location:   location,
		PostedDate: s.Find(".s-item__listingDate, .s-item__dynamic.s-item__listingDate").First().Text(),
		Image:      scraper.ImageFromSelection(s.Find("img.s-item__image-img, .s-item__image img, .s-card__image img").First(), pageURL),
		Mileage:    scraper.ParseMileage(s.Find(".s-item__subtitle, .s-item__details, .s-card__subtitle").Text()),
	}
	return e.norm.build(raw, pageURL, criteria)
}
