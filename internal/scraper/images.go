package scraper

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var errNotHTTP = errors.New("not an http(s) URL")

// image attributes in lookup order; lazy loaders keep the real URL in data-*
var imageAttrs = []string{"src", "data-src", "data-original", "data-lazy-src"}

// ImageFromSelection returns the best image URL of an <img> (or its first
// <img> descendant), resolved against baseURL and upgraded to a larger size.
// Placeholders count as absent.
func ImageFromSelection(s *goquery.Selection, baseURL string) *string {
	if s == nil || s.Length() == 0 {
		return nil
	}
	if !s.Is("img") {
		s = s.Find("img").First()
		if s.Length() == 0 {
			return nil
		}
	}

	var candidates []string
	for _, attr := range imageAttrs {
		if v, ok := s.Attr(attr); ok {
			candidates = append(candidates, v)
		}
	}
	for _, attr := range []string{"srcset", "data-srcset"} {
		if v, ok := s.Attr(attr); ok {
			candidates = append(candidates, pickFromSrcset(v))
		}
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if IsPlaceholderImage(c) {
			continue
		}
		abs, err := toAbsoluteURL(c, baseURL)
		if err != nil {
			continue
		}
		upgraded := UpgradeImageURL(abs)
		return &upgraded
	}
	return nil
}

// UpgradeImageURL rewrites known thumbnail naming schemes to a larger variant.
// URLs from other hosts are returned unchanged.
func UpgradeImageURL(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "craigslist"):
		u.Path = regexes["clThumb"].ReplaceAllString(u.Path, "_600x450.$1")
	case strings.Contains(host, "ebayimg"):
		u.Path = regexes["ebayThumb"].ReplaceAllString(u.Path, "/s-l500.$1")
	case strings.Contains(host, "cstatic-images") || strings.HasSuffix(host, "cars.com"):
		u.Path = regexes["carsThumb"].ReplaceAllString(u.Path, "/large/")
	default:
		return src
	}
	return u.String()
}

// IsPlaceholderImage reports whether src is empty, inline data, or a known
// loading/placeholder graphic.
func IsPlaceholderImage(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" {
		return true
	}
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "about:") {
		return true
	}
	return regexes["placeholder"].MatchString(lower)
}

// pickFromSrcset returns the srcset entry closest to 1000px, preferring larger ones
func pickFromSrcset(srcset string) string {
	items := strings.Split(srcset, ",")
	var candidates []struct {
		url string
		w   int
	}

	for _, item := range items {
		item = strings.TrimSpace(item)
		matches := regexes["srcsetItem"].FindStringSubmatch(item)
		if len(matches) > 2 {
			if w, err := strconv.Atoi(matches[2]); err == nil {
				candidates = append(candidates, struct {
					url string
					w   int
				}{matches[1], w})
			}
		}
	}

	if len(candidates) == 0 {
		// plain "url 2x" or single-url srcset
		if fields := strings.Fields(strings.TrimSpace(items[0])); len(fields) > 0 {
			return fields[0]
		}
		return ""
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		candidateDiff := absInt(candidate.w - 1000)
		bestDiff := absInt(best.w - 1000)
		if candidateDiff < bestDiff ||
			(candidateDiff == bestDiff && candidate.w > best.w) {
			best = candidate
		}
	}

	return best.url
}

func toAbsoluteURL(relativeURL, baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", err
	}

	abs := base.ResolveReference(rel)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", &url.Error{Op: "resolve", URL: relativeURL, Err: errNotHTTP}
	}
	return abs.String(), nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
