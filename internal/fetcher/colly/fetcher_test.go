package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

func TestFetcherSuccess(t *testing.T) {
	t.Parallel()

	gotUA := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA <- r.UserAgent()
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_, _ = w.Write([]byte("<p>hello</p>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html", resp.ContentType)
	require.Equal(t, "utf-8", resp.Charset)
	require.Equal(t, "<p>hello</p>", string(resp.Body))
	require.Equal(t, srv.URL+"/page", resp.URL)
	require.Equal(t, DefaultUserAgent, <-gotUA)

	// The same URL can be fetched again.
	_, err = f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
}

func TestFetcherMissingContentTypeIsPlainText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("if a <b and c> d then <script>x</script> ok"))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "text/plain", resp.ContentType)
	require.Empty(t, resp.Charset)
	require.Equal(t, "if a <b and c> d then <script>x</script> ok", string(resp.Body))
}

func TestFetcherCustomUserAgent(t *testing.T) {
	t.Parallel()

	ua := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.UserAgent()
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{UserAgent: "custom-agent/2"}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "custom-agent/2", <-ua)
}

func TestFetcherHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	var fetchErr *webfetch.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.Equal(t, srv.URL, fetchErr.URL)
}

func TestFetcherSurfacesPermanentRedirect(t *testing.T) {
	t.Parallel()

	targetHits := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusPermanentRedirect)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		targetHits <- struct{}{}
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL+"/old")
	var fetchErr *webfetch.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusPermanentRedirect, fetchErr.StatusCode)
	require.True(t, fetchErr.PermanentRedirect())
	require.Empty(t, targetHits)
}

func TestFetcherFollowsTemporaryRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, "moved", string(resp.Body))
}

func TestFetcherTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	var fetchErr *webfetch.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, fetchErr.StatusCode)
}

func TestFetcherConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(Config{Timeout: time.Second}).Fetch(context.Background(), "http://"+addr+"/")
	var fetchErr *webfetch.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, fetchErr.StatusCode)
	require.Equal(t, "http://"+addr+"/", fetchErr.URL)
}

func TestFetcherContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	// Either branch of the select may win; only a canceled run can error.
	_, err := New(Config{Timeout: time.Second}).Fetch(ctx, srv.URL)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var result webfetch.Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Now(), &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"Text/Plain; Charset=ISO-8859-1"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "text/plain", result.ContentType)
	require.Equal(t, "utf-8", result.Charset)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{
		StatusCode: http.StatusBadGateway,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/x")},
	}, errors.New("Bad Gateway"))
	var fe *webfetch.FetchError
	require.ErrorAs(t, fetchErr, &fe)
	require.Equal(t, http.StatusBadGateway, fe.StatusCode)
	require.Equal(t, "https://example.com/x", fe.URL)
}

func TestParseContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header    string
		mediaType string
		charset   string
	}{
		{"", "text/plain", ""},
		{"   ", "text/plain", ""},
		{"html", "text/plain", ""},
		{"garbage; charset=utf-8", "text/plain", ""},
		{"text/html;;", "text/html", ""},
		{"text/html", "text/html", ""},
		{"TEXT/PLAIN; charset=Windows-1252", "text/plain", "windows-1252"},
		{"text/html; charset", "text/html", ""},
	}
	for _, tt := range tests {
		mediaType, charset := parseContentType(tt.header)
		require.Equal(t, tt.mediaType, mediaType, tt.header)
		require.Equal(t, tt.charset, charset, tt.header)
	}
}

func TestStopOnPermanentRedirect(t *testing.T) {
	t.Parallel()

	req := &http.Request{Response: &http.Response{StatusCode: http.StatusPermanentRedirect}}
	require.ErrorIs(t, stopOnPermanentRedirect(req, nil), http.ErrUseLastResponse)

	req = &http.Request{Response: &http.Response{StatusCode: http.StatusMovedPermanently}}
	require.NoError(t, stopOnPermanentRedirect(req, make([]*http.Request, 1)))
	require.Error(t, stopOnPermanentRedirect(req, make([]*http.Request, 10)))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
