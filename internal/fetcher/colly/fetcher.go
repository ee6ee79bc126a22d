// Package collyfetcher implements the single live attempt using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultUserAgent   = "webfetch/1.0"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// defaultMediaType is reported when the response declares no usable type.
const defaultMediaType = "text/plain"

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements webfetch.Fetcher with one GET per call. Permanent
// redirects (308) are surfaced instead of followed.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(stopOnPermanentRedirect)

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch performs the live attempt. Non-2xx responses and transport failures
// are returned as *webfetch.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (webfetch.Response, error) {
	var (
		result   webfetch.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		var fe *webfetch.FetchError
		if errors.As(err, &fe) {
			if fe.URL == "" {
				fe.URL = rawURL
			}
			return webfetch.Response{}, fe
		}
		return webfetch.Response{}, &webfetch.FetchError{URL: rawURL, Err: err}
	}
	if result.StatusCode < http.StatusOK || result.StatusCode >= http.StatusMultipleChoices {
		return result, &webfetch.FetchError{URL: rawURL, StatusCode: result.StatusCode}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(start time.Time, result *webfetch.Response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *webfetch.Response,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = toResponse(r, time.Since(start))
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fe := &webfetch.FetchError{StatusCode: r.StatusCode, Err: err}
			if r.Request != nil && r.Request.URL != nil {
				fe.URL = r.Request.URL.String()
			}
			*fetchErr = fe
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// stopOnPermanentRedirect hands the 308 response back to the caller; other
// redirects follow net/http's default limit of ten hops.
func stopOnPermanentRedirect(req *http.Request, via []*http.Request) error {
	if req.Response != nil && req.Response.StatusCode == http.StatusPermanentRedirect {
		return http.ErrUseLastResponse
	}
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}

// toResponse copies what the pipeline needs out of a colly response. Colly
// transcodes bodies with a declared non-UTF-8 charset before callbacks run, so
// such bodies are reported as UTF-8.
func toResponse(r *colly.Response, elapsed time.Duration) webfetch.Response {
	var contentType string
	if r.Headers != nil {
		contentType = r.Headers.Get("Content-Type")
	}
	mediaType, charset := parseContentType(contentType)
	if charset != "" {
		charset = "utf-8"
	}
	resp := webfetch.Response{
		StatusCode:  r.StatusCode,
		ContentType: mediaType,
		Charset:     charset,
		Body:        append([]byte(nil), r.Body...),
		Duration:    elapsed,
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	return resp
}

// parseContentType splits a Content-Type header into a lowercase media type
// and its charset parameter. Malformed headers keep the part before ';'. A
// missing header, or one without a type/subtype pair, reads as text/plain.
func parseContentType(header string) (string, string) {
	if strings.TrimSpace(header) == "" {
		return defaultMediaType, ""
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType, _, _ = strings.Cut(header, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
		params = nil
	}
	if !strings.Contains(mediaType, "/") {
		return defaultMediaType, ""
	}
	return mediaType, strings.ToLower(params["charset"])
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
