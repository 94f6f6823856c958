package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"carsearch-scraper/internal/models"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.New("browser pool closed")

// BrowserPool owns one headless Chrome process shared by every rendered fetch.
// The process starts on the first Acquire and stops on Close once every lease
// has been released.
type BrowserPool struct {
	opts   BrowserOptions
	log    *logrus.Logger
	tracer trace.Tracer
	starts singleflight.Group

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	refs          int
	closed        bool
}

// BrowserLease is a reference to the shared browser. Release must be called
// on every path once the caller is done rendering.
type BrowserLease struct {
	pool       *BrowserPool
	browserCtx context.Context
	once       sync.Once
}

func NewBrowserPool(opts BrowserOptions, logger *logrus.Logger) *BrowserPool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BrowserPool{
		opts:   opts,
		log:    logger,
		tracer: otel.Tracer("carsearch-scraper/scraper"),
	}
}

// Acquire returns a lease on the shared browser, launching it if needed.
func (p *BrowserPool) Acquire(ctx context.Context) (*BrowserLease, error) {
	if lease, err := p.lease(); lease != nil || err != nil {
		return lease, err
	}

	ch := p.starts.DoChan("start", func() (any, error) {
		return nil, p.start()
	})
	select {
	case <-ctx.Done():
		return nil, &models.TimeoutError{Operation: "browser start", Timeout: p.opts.NavTimeout, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	}

	lease, err := p.lease()
	if lease == nil && err == nil {
		err = errors.New("browser not running after start")
	}
	return lease, err
}

// lease hands out a reference if the browser is already running.
func (p *BrowserPool) lease() (*BrowserLease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.browserCtx == nil {
		return nil, nil
	}
	p.refs++
	return &BrowserLease{pool: p, browserCtx: p.browserCtx}, nil
}

func (p *BrowserPool) start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.browserCtx != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// The browser outlives any single request, so it hangs off Background.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), BuildChromeOptions(p.opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	started := time.Now()
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancelBrowser()
		cancelAlloc()
		return ErrPoolClosed
	}
	p.browserCtx = browserCtx
	p.cancelBrowser = cancelBrowser
	p.cancelAlloc = cancelAlloc
	p.log.WithField("startup", time.Since(started)).Info("headless browser started")
	return nil
}

func (p *BrowserPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs > 0 {
		p.refs--
	}
	if p.closed && p.refs == 0 {
		p.shutdownLocked()
	}
}

// Close stops the browser. Leases still held keep it alive until released.
func (p *BrowserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.refs == 0 {
		p.shutdownLocked()
	}
}

func (p *BrowserPool) shutdownLocked() {
	if p.cancelBrowser == nil {
		return
	}
	p.cancelBrowser()
	p.cancelAlloc()
	p.browserCtx = nil
	p.cancelBrowser = nil
	p.cancelAlloc = nil
	p.log.Info("headless browser stopped")
}

// Running reports whether a browser process is currently held by the pool.
func (p *BrowserPool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.browserCtx != nil
}

// Render acquires a lease, renders targetURL in a fresh tab and releases the lease.
func (p *BrowserPool) Render(ctx context.Context, targetURL string, opts RenderOptions) (*FetchResult, error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Render(ctx, targetURL, opts)
}

// Release returns the lease to the pool. Extra calls are no-ops.
func (l *BrowserLease) Release() {
	l.once.Do(l.pool.release)
}

// Render opens a tab, navigates to targetURL and returns the rendered DOM.
// The tab is closed on every exit path.
func (l *BrowserLease) Render(ctx context.Context, targetURL string, opts RenderOptions) (*FetchResult, error) {
	p := l.pool
	ctx, span := p.tracer.Start(ctx, "scraper.Render", trace.WithAttributes(attribute.String("http.url", targetURL)))
	defer span.End()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.opts.NavTimeout
	}
	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = p.opts.WaitTimeout
	}

	tabCtx, cancelTab := chromedp.NewContext(l.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	fail := func(err error) (*FetchResult, error) {
		err = renderError(ctx, tabCtx, targetURL, timeout, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).
				Do(cdp.WithExecutor(tabCtx, c.Target))
		}()
	})

	ua := p.opts.UserAgent
	setup := chromedp.Tasks{
		fetch.Enable().WithPatterns(BlockedRequestPatterns(p.opts)),
		chromedp.EmulateViewport(int64(p.opts.WindowWidth), int64(p.opts.WindowHeight)),
	}
	if ua != "" {
		setup = append(setup, emulation.SetUserAgentOverride(ua).WithAcceptLanguage(AcceptLanguage))
	}
	if err := chromedp.Run(tabCtx, setup); err != nil {
		return fail(fmt.Errorf("failed to prepare tab: %w", err))
	}

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(targetURL))
	if err != nil {
		return fail(fmt.Errorf("navigation failed: %w", err))
	}

	res := &FetchResult{URL: targetURL, FinalURL: targetURL}
	if resp != nil {
		res.StatusCode = int(resp.Status)
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	}
	if res.StatusCode >= 400 {
		err := &models.FetchError{StatusCode: res.StatusCode, URL: targetURL}
		span.RecordError(err)
		return res, err
	}

	if opts.WaitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, waitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if tabCtx.Err() != nil {
				return fail(tabCtx.Err())
			}
			p.log.WithFields(logrus.Fields{"url": targetURL, "selector": opts.WaitSelector}).Debug("listing selector did not appear before wait timeout")
		}
	}

	var finalURL, html string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return fail(fmt.Errorf("failed to read rendered DOM: %w", err))
	}
	if finalURL != "" {
		res.FinalURL = finalURL
	}
	res.Body = html

	if marker, ok := DetectChallenge(html, opts.ChallengeMarkers); ok {
		res.Challenge = true
		res.ChallengeMarker = marker
		err := &models.ChallengeError{Domain: hostOf(targetURL), StatusCode: res.StatusCode, Marker: marker}
		span.RecordError(err)
		return res, err
	}
	return res, nil
}

// renderError maps a failed render onto the transport error kinds. The caller
// context is wired into the tab through cancellation, so a caller deadline
// reaches chromedp as context.Canceled and has to be read from ctx itself.
func renderError(ctx, tabCtx context.Context, targetURL string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
		return &models.TimeoutError{Operation: "render " + targetURL, Timeout: timeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &models.FetchError{URL: targetURL, Err: err}
	}
	return err
}
