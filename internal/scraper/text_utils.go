// Package scraper provides text processing utilities for listing extraction.
package scraper

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanWhitespace collapses runs of whitespace into single spaces
func CleanWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// CleanText strips any markup left in scraped text and normalizes whitespace
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	return CleanWhitespace(html.UnescapeString(strictPolicy.Sanitize(text)))
}

// MatchAny returns the first substring found in s, ignoring case.
func MatchAny(s string, substrings []string) (string, bool) {
	sLower := strings.ToLower(s)
	for _, substr := range substrings {
		if substr == "" {
			continue
		}
		if strings.Contains(sLower, strings.ToLower(substr)) {
			return substr, true
		}
	}
	return "", false
}

// DetectChallenge scans a page body for anti-bot markers. The package-wide
// ChallengeMarkers are always checked; extra holds source-specific markers.
func DetectChallenge(body string, extra []string) (string, bool) {
	if marker, ok := MatchAny(body, ChallengeMarkers); ok {
		return marker, true
	}
	return MatchAny(body, extra)
}
