package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// HTTPClient is the static fetch transport
type HTTPClient struct {
	client   *http.Client
	noFollow *http.Client
	config   config.ScrapeConfig
	cache    *expirable.LRU[string, FetchResult]
	log      *logrus.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPClient(cfg config.ScrapeConfig, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// Configure HTTP client with connection pooling
	var transport http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	if cfg.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = HTTPTimeout
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	noFollow := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var cache *expirable.LRU[string, FetchResult]
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 {
		cache = expirable.NewLRU[string, FetchResult](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	return &HTTPClient{
		client:   client,
		noFollow: noFollow,
		config:   cfg,
		cache:    cache,
		log:      logger,
		tracer:   otel.Tracer("carsearch-scraper/scraper"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// setRequestHeaders sets browser-like headers on the request
func (h *HTTPClient) setRequestHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Accept", AcceptHTML)
	req.Header.Set("Accept-Language", AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

func (h *HTTPClient) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		limit := rate.Inf
		if h.config.RateLimit > 0 {
			limit = rate.Limit(h.config.RateLimit)
		}
		burst := h.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		h.limiters[host] = l
	}
	return l
}

func cacheKey(targetURL string, opts FetchOptions) string {
	if opts.FollowRedirects {
		return "follow " + targetURL
	}
	return "nofollow " + targetURL
}

// Fetch issues a GET for targetURL. Non-2xx statuses fail with FetchError.
// When redirects are not followed, a 3xx fails with ChallengeError, as does a
// body containing a challenge marker. Successful pages are cached for CacheTTL.
func (h *HTTPClient) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResult, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = errors.New("absolute http(s) URL required")
		}
		return nil, &models.InvalidURLError{URL: targetURL, Err: err}
	}

	ctx, span := h.tracer.Start(ctx, "scraper.Fetch", trace.WithAttributes(
		attribute.String("http.url", targetURL),
		attribute.Bool("http.follow_redirects", opts.FollowRedirects),
	))
	defer span.End()

	key := cacheKey(targetURL, opts)
	if h.cache != nil && !opts.SkipCache {
		if cached, ok := h.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			cached.FromCache = true
			return &cached, nil
		}
	}

	if err := h.limiter(u.Host).Wait(ctx); err != nil {
		err = h.wrapNetErr(targetURL, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := h.fetchWithRetry(ctx, targetURL, opts, 0)
	if res != nil {
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.log.WithFields(logrus.Fields{"url": targetURL, "error": err}).Debug("static fetch failed")
		return res, err
	}

	if h.cache != nil {
		h.cache.Add(key, *res)
	}
	return res, nil
}

func (h *HTTPClient) fetchWithRetry(ctx context.Context, targetURL string, opts FetchOptions, retryCount int) (*FetchResult, error) {
	res, err := h.fetchOnce(ctx, targetURL, opts)
	var fe *models.FetchError
	if err == nil || !errors.As(err, &fe) || fe.StatusCode < 500 {
		return res, err
	}
	if retryCount >= h.config.MaxRetries {
		return res, err
	}
	return h.retryWithBackoff(ctx, targetURL, opts, retryCount)
}

// retryWithBackoff implements exponential backoff for retries
func (h *HTTPClient) retryWithBackoff(ctx context.Context, targetURL string, opts FetchOptions, retryCount int) (*FetchResult, error) {
	delay := time.Duration(1000*(1<<retryCount)) * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}

	h.log.WithFields(logrus.Fields{"url": targetURL, "attempt": retryCount + 1, "delay": delay}).Debug("retrying after server error")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, h.wrapNetErr(targetURL, ctx.Err())
	case <-timer.C:
	}
	return h.fetchWithRetry(ctx, targetURL, opts, retryCount+1)
}

func (h *HTTPClient) fetchOnce(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &models.InvalidURLError{URL: targetURL, Err: err}
	}
	h.setRequestHeaders(req, opts.Headers)

	client := h.client
	if !opts.FollowRedirects {
		client = h.noFollow
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, h.wrapNetErr(targetURL, err)
	}
	defer resp.Body.Close()

	res := &FetchResult{
		URL:        targetURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}

	if !opts.FollowRedirects && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		res.Challenge = true
		return res, &models.ChallengeError{Domain: req.URL.Hostname(), StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, &models.FetchError{StatusCode: resp.StatusCode, URL: targetURL}
	}

	body, err := h.readBody(resp)
	if err != nil {
		return res, h.wrapNetErr(targetURL, err)
	}
	res.Body = body

	if marker, ok := DetectChallenge(body, opts.ChallengeMarkers); ok {
		res.Challenge = true
		res.ChallengeMarker = marker
		return res, &models.ChallengeError{Domain: req.URL.Hostname(), StatusCode: resp.StatusCode, Marker: marker}
	}
	return res, nil
}

// readBody reads the response body with a size limit
func (h *HTTPClient) readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	limit := int64(h.config.SizeLimitBytes)
	if limit > 0 {
		reader = io.LimitReader(reader, limit)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

func (h *HTTPClient) wrapNetErr(targetURL string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &models.TimeoutError{
			Operation: "fetch " + targetURL,
			Timeout:   h.client.Timeout,
			Err:       err,
		}
	}
	return &models.FetchError{URL: targetURL, Err: err}
}
