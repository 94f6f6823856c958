// Package scraper provides browser configuration options for Chrome automation.
package scraper

import (
	"time"

	"carsearch-scraper/internal/config"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserOptions contains configuration for browser automation
type BrowserOptions struct {
	Headless     bool
	ExecPath     string
	BlockFonts   bool
	BlockMedia   bool
	BlockImages  bool
	WindowWidth  int
	WindowHeight int
	UserAgent    string
	NavTimeout   time.Duration
	WaitTimeout  time.Duration
}

// DefaultBrowserOptions returns standard browser options
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:     true,
		BlockFonts:   true,
		BlockMedia:   true,
		WindowWidth:  DefaultWindowWidth,
		WindowHeight: DefaultWindowHeight,
		NavTimeout:   BrowserTimeout,
		WaitTimeout:  ListingWaitTimeout,
	}
}

// BrowserOptionsFromConfig maps the browser section of the config onto BrowserOptions
func BrowserOptionsFromConfig(cfg config.BrowserConfig) BrowserOptions {
	opts := DefaultBrowserOptions()
	opts.Headless = cfg.Headless
	opts.ExecPath = cfg.ExecPath
	opts.BlockFonts = cfg.BlockFonts
	opts.BlockMedia = cfg.BlockMedia
	opts.UserAgent = cfg.UserAgent
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts.WindowWidth = cfg.WindowWidth
		opts.WindowHeight = cfg.WindowHeight
	}
	if cfg.NavTimeout > 0 {
		opts.NavTimeout = cfg.NavTimeout
	}
	if cfg.WaitTimeout > 0 {
		opts.WaitTimeout = cfg.WaitTimeout
	}
	return opts
}

// BuildChromeOptions creates Chrome options based on BrowserOptions
func BuildChromeOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	chromeOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-features", "VizDisplayCompositor"),
		chromedp.Flag("disable-plugins", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)

	if opts.ExecPath != "" {
		chromeOpts = append(chromeOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		chromeOpts = append(chromeOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.BlockImages {
		chromeOpts = append(chromeOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	return chromeOpts
}

// BlockedRequestPatterns lists the request patterns a tab fails before they
// leave the browser: blocked resource types and ad/tracker domains.
func BlockedRequestPatterns(opts BrowserOptions) []*fetch.RequestPattern {
	var patterns []*fetch.RequestPattern
	add := func(rt network.ResourceType) {
		patterns = append(patterns, &fetch.RequestPattern{ResourceType: rt, RequestStage: fetch.RequestStageRequest})
	}
	if opts.BlockFonts {
		add(network.ResourceTypeFont)
	}
	if opts.BlockMedia {
		add(network.ResourceTypeMedia)
	}
	if opts.BlockImages {
		add(network.ResourceTypeImage)
	}
	for _, domain := range BlockedDomains {
		patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*" + domain + "*", RequestStage: fetch.RequestStageRequest})
	}
	return patterns
}
