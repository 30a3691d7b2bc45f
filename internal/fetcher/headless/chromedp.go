// Package headless renders pages with a shared headless Chrome process.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent      string
	DefaultTimeout time.Duration
	SettleDelay    time.Duration
}

// Blocked unless the caller asks for images: these resource types never
// influence extracted text and dominate page weight.
var blockedResourcePatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.css", "*.woff", "*.woff2", "*.ttf", "*.mp4", "*.webm",
}

// Fetcher implements monitor.Fetcher using chromedp. One browser process is
// shared across calls; each fetch runs in its own tab, which is the unit of
// isolation and is always closed on the way out.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a headless fetcher. The browser process starts lazily on the
// first fetch.
func New(cfg Config) *Fetcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close shuts the shared browser and the allocator down.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.browserCancel != nil {
		f.browserCancel()
		f.browserCtx = nil
		f.browserCancel = nil
	}
	f.mu.Unlock()
	f.allocCancel()
}

// browser returns the shared browser context, starting or restarting the
// process when it is missing or disconnected.
func (f *Fetcher) browser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browserCtx != nil && f.browserCtx.Err() == nil {
		return f.browserCtx, nil
	}
	if f.browserCancel != nil {
		f.browserCancel()
	}

	browserCtx, cancel := chromedp.NewContext(f.allocator)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	f.browserCtx = browserCtx
	f.browserCancel = cancel
	return browserCtx, nil
}

// Fetch navigates to the URL in a fresh tab and returns the rendered markup.
// A timeout or navigation failure aborts the tab only; the browser stays up.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts monitor.FetchOptions) (monitor.Page, error) {
	browserCtx, err := f.browser()
	if err != nil {
		return monitor.Page{}, &monitor.FetchError{Kind: monitor.FetchNavigation, URL: url, Err: err}
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.DefaultTimeout
	}
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	// Caller cancellation closes the tab without touching the browser.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newDocumentMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	settle := f.cfg.SettleDelay
	if opts.WaitForIdle {
		settle = 4 * settle
	}

	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(opts),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		kind := monitor.FetchNavigation
		if errors.Is(err, context.DeadlineExceeded) {
			kind = monitor.FetchTimeout
		}
		return monitor.Page{}, &monitor.FetchError{Kind: kind, URL: url, Err: err}
	}

	status, headers, responseURL := meta.snapshot()
	if responseURL == "" {
		responseURL = url
	}
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status >= 300 {
		return monitor.Page{}, &monitor.FetchError{Kind: monitor.FetchBadStatus, URL: url, StatusCode: status}
	}

	return monitor.Page{
		URL:        responseURL,
		StatusCode: status,
		HTML:       html,
		Headers:    headers,
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) networkSetupAction(opts monitor.FetchOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if !opts.IncludeImages {
			if err := network.SetBlockedURLs(blockedResourcePatterns).Do(ctx); err != nil {
				return fmt.Errorf("block resource urls: %w", err)
			}
		}
		return nil
	})
}

// documentMeta captures the main document response while the tab loads.
type documentMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newDocumentMeta() *documentMeta {
	return &documentMeta{headers: http.Header{}}
}

func (m *documentMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	if resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *documentMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	headers := make(http.Header, len(m.headers))
	for k, values := range m.headers {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	return m.status, headers, m.url
}
