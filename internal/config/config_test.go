package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CARSEARCH_CONFIG", "CHROME_MAJOR", "SCRAPE_USER_AGENT", "SCRAPE_TIMEOUT_MS",
		"SCRAPE_CACHE_TTL", "SCRAPE_RATE_LIMIT", "BROWSER_ENABLED", "CHROME_PATH",
		"AGGREGATE_MODE", "AGGREGATE_TIMEOUT", "MAX_LISTINGS_PER_SOURCE", "CRAIGSLIST_CITIES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeSerializeShared, cfg.Aggregator.Mode)
	assert.Equal(t, 25*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, 20, cfg.Aggregator.MaxListingsPerSource)
	assert.Equal(t, 500, cfg.Aggregator.MinPlausiblePrice)
	assert.True(t, cfg.Aggregator.SampleOnEmpty)
	assert.Equal(t, 5*time.Minute, cfg.Scrape.CacheTTL)
	assert.Contains(t, cfg.Scrape.UserAgent, "Chrome/133.")
	assert.Equal(t, cfg.Scrape.UserAgent, cfg.Browser.UserAgent)
	assert.True(t, cfg.Sources.Craigslist)
	assert.True(t, cfg.Sources.Ebay)
	assert.False(t, cfg.Sources.CarsCom)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, 3, cfg.Sources.CraigslistFanout)
	assert.Equal(t, DefaultCraigslistCities, cfg.Sources.CraigslistCities)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 10*time.Second, cfg.Browser.WaitTimeout)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "carsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scrape:
  cache_ttl: 2m
  rate_limit: 0.5
aggregator:
  mode: parallel
  timeout: 10s
sources:
  craigslist_cities: [sfbay, seattle]
  craigslist_fanout: 2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeParallel, cfg.Aggregator.Mode)
	assert.Equal(t, 10*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Scrape.CacheTTL)
	assert.InDelta(t, 0.5, cfg.Scrape.RateLimit, 1e-9)
	assert.Equal(t, []string{"sfbay", "seattle"}, cfg.Sources.CraigslistCities)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Aggregator.MaxListingsPerSource)
	assert.True(t, cfg.Sources.Ebay)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "carsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aggregator:\n  mode: parallel\n"), 0o600))

	t.Setenv("CARSEARCH_CONFIG", path)
	t.Setenv("AGGREGATE_MODE", "sequential")
	t.Setenv("AGGREGATE_TIMEOUT", "5s")
	t.Setenv("CRAIGSLIST_CITIES", "miami, seattle,")
	t.Setenv("BROWSER_ENABLED", "true")
	t.Setenv("CHROME_PATH", "/usr/bin/chromium")
	t.Setenv("SCRAPE_USER_AGENT", "custom-agent/1.0")
	t.Setenv("MAX_LISTINGS_PER_SOURCE", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeSequential, cfg.Aggregator.Mode)
	assert.Equal(t, 5*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, []string{"miami", "seattle"}, cfg.Sources.CraigslistCities)
	assert.Equal(t, 2, cfg.Sources.CraigslistFanout)
	assert.True(t, cfg.Browser.Enabled)
	assert.True(t, cfg.Sources.CarsCom)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecPath)
	assert.Equal(t, "custom-agent/1.0", cfg.Scrape.UserAgent)
	assert.Equal(t, "custom-agent/1.0", cfg.Browser.UserAgent)
	assert.Equal(t, 5, cfg.Aggregator.MaxListingsPerSource)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("aggregator: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGGREGATE_MODE", "yolo")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown aggregate mode")
	})

	t.Run("bad duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGGREGATE_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "AGGREGATE_TIMEOUT")
	})

	t.Run("bad bool", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BROWSER_ENABLED", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "BROWSER_ENABLED")
	})
}

func TestChromeMajorUserAgent(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHROME_MAJOR", "128")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Scrape.ChromeMajor)
	assert.Contains(t, cfg.Scrape.UserAgent, "Chrome/128.")
}

func TestCompileRegexes(t *testing.T) {
	re := CompileRegexes()
	for _, key := range []string{"year", "mileage", "price", "trackingParam", "clThumb", "ebayThumb", "carsThumb", "placeholder", "ebayItemID", "srcsetItem"} {
		assert.NotNil(t, re[key], key)
	}
	assert.True(t, re["trackingParam"].MatchString("utm_source"))
	assert.True(t, re["trackingParam"].MatchString("_trksid"))
	assert.False(t, re["trackingParam"].MatchString("query"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("chatty"))
}
