package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

type countingFetcher struct {
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string) (webfetch.Response, error) {
	f.calls++
	return webfetch.Response{URL: rawURL, StatusCode: 200}, nil
}

func TestLimiterWaitDelaysSecondRequest(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://one.example/"))
	require.NoError(t, l.Wait(ctx, "https://two.example/"))
}

func TestLimiterDisabledNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://example.com/"))
	}
}

func TestFetcherTurnsExpiredWaitIntoFetchError(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, New(Config{RPS: 0.01, Burst: 1}))

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, "https://example.com/again")

	var fetchErr *webfetch.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, "https://example.com/again", fetchErr.URL)
	require.Zero(t, fetchErr.StatusCode)
	require.Equal(t, 1, next.calls)
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", hostOf("https://EXAMPLE.com:8443/x"))
	require.Equal(t, "unknown", hostOf("::bad"))
}
