package scraper

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
)

var regexes = config.CompileRegexes()

// CleanListingURL resolves href against base and removes tracking query
// parameters and the fragment. The result is always an absolute http(s) URL.
func CleanListingURL(href, base string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", &models.InvalidURLError{URL: href, Err: errors.New("not a navigable link")}
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", &models.InvalidURLError{URL: href, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		baseURL, err := url.Parse(base)
		if err != nil || !baseURL.IsAbs() {
			return "", &models.InvalidURLError{URL: href, Err: errors.New("relative link without absolute base")}
		}
		u = baseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &models.InvalidURLError{URL: href, Err: errors.New("unsupported scheme " + u.Scheme)}
	}
	if u.Host == "" {
		return "", &models.InvalidURLError{URL: href, Err: errors.New("missing host")}
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if regexes["trackingParam"].MatchString(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// StripQuery drops the query string and fragment from an absolute URL.
func StripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// LastPathSegment returns the final path element without its extension
// ("/cto/d/camry/7712345678.html" -> "7712345678").
func LastPathSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return ""
	}
	seg := path.Base(p)
	if ext := path.Ext(seg); ext != "" {
		seg = strings.TrimSuffix(seg, ext)
	}
	return seg
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}
