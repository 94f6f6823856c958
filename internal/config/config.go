package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Execution modes understood by the aggregator
const (
	ModeParallel        = "parallel"
	ModeSerializeShared = "serialize-shared"
	ModeSequential      = "sequential"
)

// DefaultCraigslistCities is the pool of city subdomains queried by the Craigslist source
var DefaultCraigslistCities = []string{
	"newyork", "losangeles", "chicago", "houston", "phoenix",
	"sfbay", "dallas", "miami", "atlanta", "seattle",
}

// Config is the full runtime configuration
type Config struct {
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Browser    BrowserConfig    `yaml:"browser"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Sources    SourcesConfig    `yaml:"sources"`
}

// ScrapeConfig contains static fetch configuration
type ScrapeConfig struct {
	UserAgent        string        `yaml:"user_agent"`
	TimeoutMs        int           `yaml:"timeout_ms"`
	SizeLimitBytes   int           `yaml:"size_limit_bytes"`
	MaxRetries       int           `yaml:"max_retries"`
	ChromeMajor      int           `yaml:"chrome_major"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheSize        int           `yaml:"cache_size"`
	RateLimit        float64       `yaml:"rate_limit"`
	RateBurst        int           `yaml:"rate_burst"`
	CloudflareBypass bool          `yaml:"cloudflare_bypass"`
}

// BrowserConfig contains rendered fetch configuration
type BrowserConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ExecPath     string        `yaml:"exec_path"`
	Headless     bool          `yaml:"headless"`
	UserAgent    string        `yaml:"user_agent"`
	WindowWidth  int           `yaml:"window_width"`
	WindowHeight int           `yaml:"window_height"`
	NavTimeout   time.Duration `yaml:"nav_timeout"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	BlockFonts   bool          `yaml:"block_fonts"`
	BlockMedia   bool          `yaml:"block_media"`
}

// AggregatorConfig controls dispatch of sources
type AggregatorConfig struct {
	Mode                 string        `yaml:"mode"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxListingsPerSource int           `yaml:"max_listings_per_source"`
	MinPlausiblePrice    int           `yaml:"min_plausible_price"`
	SampleOnEmpty        bool          `yaml:"sample_on_empty"`
}

// SourcesConfig selects which marketplaces are queried
type SourcesConfig struct {
	Craigslist       bool     `yaml:"craigslist"`
	Ebay             bool     `yaml:"ebay"`
	CarsCom          bool     `yaml:"cars_com"`
	CraigslistCities []string `yaml:"craigslist_cities"`
	CraigslistFanout int      `yaml:"craigslist_fanout"`
}

// DefaultScrapeConfig returns the default scraping configuration
func DefaultScrapeConfig() ScrapeConfig {
	chromeMajor := 133
	if env := os.Getenv("CHROME_MAJOR"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil {
			chromeMajor = parsed
		}
	}

	return ScrapeConfig{
		UserAgent:        DesktopUserAgent(chromeMajor),
		TimeoutMs:        15000,
		SizeLimitBytes:   6_000_000,
		MaxRetries:       2,
		ChromeMajor:      chromeMajor,
		CacheTTL:         5 * time.Minute,
		CacheSize:        256,
		RateLimit:        2,
		RateBurst:        2,
		CloudflareBypass: true,
	}
}

// DefaultBrowserConfig returns the default rendered fetch configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Enabled:      false,
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
		NavTimeout:   30 * time.Second,
		WaitTimeout:  10 * time.Second,
		BlockFonts:   true,
		BlockMedia:   true,
	}
}

// DefaultAggregatorConfig returns the default dispatch configuration
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Mode:                 ModeSerializeShared,
		Timeout:              25 * time.Second,
		MaxListingsPerSource: 20,
		MinPlausiblePrice:    500,
		SampleOnEmpty:        true,
	}
}

// DefaultSourcesConfig returns the default source selection
func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		Craigslist:       true,
		Ebay:             true,
		CarsCom:          false,
		CraigslistCities: append([]string(nil), DefaultCraigslistCities...),
		CraigslistFanout: 3,
	}
}

// Default returns a Config populated with defaults only.
func Default() Config {
	return Config{
		Scrape:     DefaultScrapeConfig(),
		Browser:    DefaultBrowserConfig(),
		Aggregator: DefaultAggregatorConfig(),
		Sources:    DefaultSourcesConfig(),
	}
}

// DesktopUserAgent builds a desktop Chrome User-Agent for the given major version
func DesktopUserAgent(chromeMajor int) string {
	return fmt.Sprintf("Mozilla/5.0 (Windows NT 10; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.6943.126 Safari/537.36", chromeMajor)
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A missing .env file is not an error; a missing
// YAML file is an error only when path was given explicitly.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CARSEARCH_CONFIG")
		explicit = path != ""
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = cfg.Scrape.UserAgent
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CHROME_MAJOR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHROME_MAJOR: %w", err)
		}
		cfg.Scrape.ChromeMajor = n
		cfg.Scrape.UserAgent = DesktopUserAgent(n)
	}
	if v := os.Getenv("SCRAPE_USER_AGENT"); v != "" {
		cfg.Scrape.UserAgent = v
	}
	if v := os.Getenv("SCRAPE_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCRAPE_TIMEOUT_MS: %w", err)
		}
		cfg.Scrape.TimeoutMs = n
	}
	if v := os.Getenv("SCRAPE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCRAPE_CACHE_TTL: %w", err)
		}
		cfg.Scrape.CacheTTL = d
	}
	if v := os.Getenv("SCRAPE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SCRAPE_RATE_LIMIT: %w", err)
		}
		cfg.Scrape.RateLimit = f
	}
	if v := os.Getenv("BROWSER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BROWSER_ENABLED: %w", err)
		}
		cfg.Browser.Enabled = b
		cfg.Sources.CarsCom = b
	}
	if v := os.Getenv("CHROME_PATH"); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v := os.Getenv("AGGREGATE_MODE"); v != "" {
		cfg.Aggregator.Mode = v
	}
	if v := os.Getenv("AGGREGATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AGGREGATE_TIMEOUT: %w", err)
		}
		cfg.Aggregator.Timeout = d
	}
	if v := os.Getenv("MAX_LISTINGS_PER_SOURCE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_LISTINGS_PER_SOURCE: %w", err)
		}
		cfg.Aggregator.MaxListingsPerSource = n
	}
	if v := os.Getenv("CRAIGSLIST_CITIES"); v != "" {
		var cities []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cities = append(cities, c)
			}
		}
		cfg.Sources.CraigslistCities = cities
		cfg.Sources.CraigslistFanout = len(cities)
	}
	return nil
}

// Validate rejects configurations the aggregator cannot run with.
func (c Config) Validate() error {
	switch c.Aggregator.Mode {
	case ModeParallel, ModeSerializeShared, ModeSequential:
	default:
		return fmt.Errorf("unknown aggregate mode %q", c.Aggregator.Mode)
	}
	if c.Aggregator.Timeout <= 0 {
		return fmt.Errorf("aggregate timeout must be positive, got %s", c.Aggregator.Timeout)
	}
	if c.Aggregator.MaxListingsPerSource <= 0 {
		return fmt.Errorf("max listings per source must be positive, got %d", c.Aggregator.MaxListingsPerSource)
	}
	if c.Sources.Craigslist && len(c.Sources.CraigslistCities) == 0 {
		return errors.New("craigslist enabled with no cities")
	}
	return nil
}

// CompileRegexes pre-compiles regex patterns for better performance
func CompileRegexes() map[string]*regexp.Regexp {
	return map[string]*regexp.Regexp{
		"year":          regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`),
		"mileage":       regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k)?\s*(?:miles|mi)\b`),
		"price":         regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`),
		"trackingParam": regexp.MustCompile(`(?i)^(utm_.*|_trk.*|trk.*|hash|amdata|itmmeta|mkevt|mkcid|mkrid|campid|toolid|customid|_skw|epid|fbclid|gclid|ref|clk_rvr_id)$`),
		"clThumb":       regexp.MustCompile(`_\d+x\d+c?\.(jpe?g|png|webp)$`),
		"ebayThumb":     regexp.MustCompile(`/s-l\d+\.(jpe?g|png|webp)`),
		"carsThumb":     regexp.MustCompile(`/(small|medium|thumbnail)/`),
		"placeholder":   regexp.MustCompile(`(?i)(placeholder|loading|spinner|blank|no[-_]?image|1x1|spacer|pixel)\.(gif|png|jpe?g|svg|webp)`),
		"ebayItemID":    regexp.MustCompile(`/itm/(?:[^/]+/)?(\d+)`),
		"srcsetItem":    regexp.MustCompile(`(\S+)\s+(\d+)w`),
	}
}
