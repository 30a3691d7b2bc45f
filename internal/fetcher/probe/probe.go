// Package probe implements a plain-HTTP fetcher using gocolly. It serves the
// industry classifier when no rendered markup is at hand; monitored pages are
// rendered by the headless fetcher instead.
package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements monitor.Fetcher over a Colly collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts monitor.FetchOptions) (monitor.Page, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)

	var (
		page     monitor.Page
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(resp *colly.Response) {
		page = monitor.Page{
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			HTML:       string(resp.Body),
			Headers:    headerCopy(resp.Headers),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode >= 400 {
			fetchErr = &monitor.FetchError{
				Kind:       monitor.FetchBadStatus,
				URL:        url,
				StatusCode: resp.StatusCode,
			}
			return
		}
		fetchErr = &monitor.FetchError{Kind: monitor.FetchNavigation, URL: url, Err: err}
	})

	if err := collector.Visit(url); err != nil {
		// OnError fires before Visit returns; prefer its typed error.
		if fetchErr != nil {
			return monitor.Page{}, fetchErr
		}
		return monitor.Page{}, &monitor.FetchError{Kind: monitor.FetchNavigation, URL: url, Err: err}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return monitor.Page{}, &monitor.FetchError{Kind: monitor.FetchTimeout, URL: url, Err: err}
	}
	if fetchErr != nil {
		return monitor.Page{}, fetchErr
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return monitor.Page{}, &monitor.FetchError{
			Kind:       monitor.FetchBadStatus,
			URL:        url,
			StatusCode: page.StatusCode,
		}
	}
	return page, nil
}

func headerCopy(h *http.Header) http.Header {
	out := http.Header{}
	if h == nil {
		return out
	}
	for k, values := range *h {
		for _, v := range values {
			out.Add(k, v)
		}
	}
	return out
}
