// Package scraper provides constants used throughout the scraping functionality.
package scraper

import "time"

// Timeout constants
const (
	HTTPTimeout        = 18 * time.Second
	BrowserTimeout     = 40 * time.Second
	DefaultTimeout     = 15 * time.Second
	ListingWaitTimeout = 10 * time.Second
)

// Browser configuration
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
	MaxRedirects        = 5
)

// Listing extraction limits
const (
	DefaultListingLimit = 20
	DefaultMinPrice     = 500
	MinModelYear        = 1980
)

// Request headers sent by the static transport
const (
	AcceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	AcceptLanguage = "en-US,en;q=0.9"
)

// Blocked domains for browser requests
var BlockedDomains = []string{
	"doubleclick",
	"googlesyndication",
	"google-analytics",
	"googletagmanager",
	"facebook.com/tr",
	"taboola",
	"outbrain",
	"scorecardresearch",
	"chartbeat",
	"amazon-adsystem",
}

// ChallengeMarkers are substrings of anti-bot interstitials served in place of results
var ChallengeMarkers = []string{
	"attention required",
	"cloudflare ray id",
	"what can i do to resolve this?",
	"why have i been blocked?",
	"performance & security by cloudflare",
	"verify you are a human",
	"pardon our interruption",
	"px-captcha",
	"g-recaptcha",
	"h-captcha",
}
