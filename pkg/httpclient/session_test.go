package httpclient

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libharvest/pkg/config"
	"libharvest/pkg/logger"
)

func testSession(t *testing.T) *Session {
	t.Helper()

	cfg := &config.HTTPConfig{
		UserAgent:         "libharvest-test/1.0",
		BrowserUserAgent:  "Mozilla/5.0 (test)",
		PageTimeout:       5 * time.Second,
		DownloadTimeout:   5 * time.Second,
		RequestsPerMinute: 600000,
		CacheEnabled:      true,
		CacheDir:          t.TempDir(),
		CacheEntries:      16,
		CacheMaxAge:       time.Hour,
	}
	retryCfg := &config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	s, err := NewSession(cfg, retryCfg, logger.NewNopLogger())
	require.NoError(t, err)

	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return s
}

func TestGetBuffersBody(t *testing.T) {
	s := testSession(t)
	httpmock.RegisterResponder("GET", "https://example.org/page",
		httpmock.NewStringResponder(200, "hello"))

	resp, err := s.Get(context.Background(), "https://example.org/page", Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []byte("hello"), resp.Body)
	assert.False(t, resp.FromCache)
}

func TestGetRetriesServerErrors(t *testing.T) {
	s := testSession(t)

	calls := 0
	httpmock.RegisterResponder("GET", "https://example.org/flaky",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(503, "unavailable"), nil
			}
			return httpmock.NewStringResponse(200, "recovered"), nil
		})

	resp, err := s.Get(context.Background(), "https://example.org/flaky", Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestGetGivesUpAfterMaxAttempts(t *testing.T) {
	s := testSession(t)
	httpmock.RegisterResponder("GET", "https://example.org/down",
		httpmock.NewStringResponder(500, "down"))

	_, err := s.Get(context.Background(), "https://example.org/down", Options{})
	assert.Error(t, err)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestChallengeStatusesAreReturnedNotRetried(t *testing.T) {
	s := testSession(t)

	for _, status := range []int{202, 403, 404} {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", "https://example.org/asset",
			httpmock.NewStringResponder(status, "<html>challenge</html>"))

		resp, err := s.Get(context.Background(), "https://example.org/asset", Options{})
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	}
}

func TestHeaderProfiles(t *testing.T) {
	s := testSession(t)

	var gotUA, gotReferer string
	httpmock.RegisterResponder("GET", "https://example.org/asset",
		func(req *http.Request) (*http.Response, error) {
			gotUA = req.Header.Get("User-Agent")
			gotReferer = req.Header.Get("Referer")
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	_, err := s.Get(context.Background(), "https://example.org/asset", Options{})
	require.NoError(t, err)
	assert.Equal(t, "libharvest-test/1.0", gotUA)
	assert.Empty(t, gotReferer)

	_, err = s.Get(context.Background(), "https://example.org/asset", Options{
		Browser: true,
		Referer: "https://example.org/items/42/",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 (test)", gotUA)
	assert.Equal(t, "https://example.org/items/42/", gotReferer)
}

func TestSetCookieReachesRequests(t *testing.T) {
	s := testSession(t)
	s.SetCookie("aws-waf-token", "tok-123", "example.org")

	var gotCookie string
	httpmock.RegisterResponder("GET", "https://example.org/protected",
		func(req *http.Request) (*http.Response, error) {
			if c, err := req.Cookie("aws-waf-token"); err == nil {
				gotCookie = c.Value
			}
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	_, err := s.Get(context.Background(), "https://example.org/protected", Options{})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", gotCookie)
}

func TestCacheableHTMLPagesAreCached(t *testing.T) {
	s := testSession(t)

	resp := httpmock.NewStringResponse(200, "<html>index</html>")
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	httpmock.RegisterResponder("GET", "https://example.org/index.html",
		httpmock.ResponderFromResponse(resp))

	first, err := s.Get(context.Background(), "https://example.org/index.html", Options{Cacheable: true})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := s.Get(context.Background(), "https://example.org/index.html", Options{Cacheable: true})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestNonCacheableRequestsBypassCache(t *testing.T) {
	s := testSession(t)

	resp := httpmock.NewStringResponse(200, "<html>page</html>")
	resp.Header.Set("Content-Type", "text/html")
	httpmock.RegisterResponder("GET", "https://example.org/asset",
		httpmock.ResponderFromResponse(resp))

	for i := 0; i < 2; i++ {
		r, err := s.Get(context.Background(), "https://example.org/asset", Options{})
		require.NoError(t, err)
		assert.False(t, r.FromCache)
	}
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestCacheSurvivesNewSession(t *testing.T) {
	dir := t.TempDir()

	cache, err := NewCache(dir, 8, time.Hour)
	require.NoError(t, err)
	require.NoError(t, cache.Put("https://example.org/a", []byte("body-a")))

	reopened, err := NewCache(dir, 8, time.Hour)
	require.NoError(t, err)
	body, ok := reopened.Get("https://example.org/a")
	assert.True(t, ok)
	assert.Equal(t, []byte("body-a"), body)
}

func TestCacheExpiredEntryIsMissAndRemoved(t *testing.T) {
	dir := t.TempDir()

	cache, err := NewCache(dir, 8, time.Hour)
	require.NoError(t, err)
	require.NoError(t, cache.Put("https://example.org/index.html", []byte("stale index")))

	// Backdate the entry past the max age, as if it were written weeks ago.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old := time.Now().Add(-2 * time.Hour)
	path := filepath.Join(dir, entries[0].Name())
	require.NoError(t, os.Chtimes(path, old, old))

	_, ok := cache.Get("https://example.org/index.html")
	assert.False(t, ok)

	// The stale file is gone, so a reopened cache cannot resurrect it.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	reopened, err := NewCache(dir, 8, time.Hour)
	require.NoError(t, err)
	_, ok = reopened.Get("https://example.org/index.html")
	assert.False(t, ok)
}

func TestCacheZeroMaxAgeNeverExpires(t *testing.T) {
	dir := t.TempDir()

	cache, err := NewCache(dir, 8, 0)
	require.NoError(t, err)
	require.NoError(t, cache.Put("https://example.org/a", []byte("body-a")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old := time.Now().Add(-24 * 365 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, entries[0].Name()), old, old))

	body, ok := cache.Get("https://example.org/a")
	assert.True(t, ok)
	assert.Equal(t, []byte("body-a"), body)
}

func TestExpiredCachedPageIsRefetched(t *testing.T) {
	cfg := &config.HTTPConfig{
		UserAgent:         "libharvest-test/1.0",
		BrowserUserAgent:  "Mozilla/5.0 (test)",
		PageTimeout:       5 * time.Second,
		DownloadTimeout:   5 * time.Second,
		RequestsPerMinute: 600000,
		CacheEnabled:      true,
		CacheDir:          t.TempDir(),
		CacheEntries:      16,
		CacheMaxAge:       time.Hour,
	}
	retryCfg := &config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
	s, err := NewSession(cfg, retryCfg, logger.NewNopLogger())
	require.NoError(t, err)
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)

	resp := httpmock.NewStringResponse(200, "<html>index</html>")
	resp.Header.Set("Content-Type", "text/html")
	httpmock.RegisterResponder("GET", "https://example.org/index.html",
		httpmock.ResponderFromResponse(resp))

	_, err = s.Get(context.Background(), "https://example.org/index.html", Options{Cacheable: true})
	require.NoError(t, err)
	require.Equal(t, 1, httpmock.GetTotalCallCount())

	// Age the entry beyond the bound; the next fetch must hit the origin.
	entries, err := os.ReadDir(cfg.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(cfg.CacheDir, entries[0].Name()), old, old))

	second, err := s.Get(context.Background(), "https://example.org/index.html", Options{Cacheable: true})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestCacheEviction(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 2, time.Hour)
	require.NoError(t, err)

	require.NoError(t, cache.Put("u1", []byte("1")))
	require.NoError(t, cache.Put("u2", []byte("2")))
	require.NoError(t, cache.Put("u3", []byte("3")))

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("u1")
	assert.False(t, ok)
	_, ok = cache.Get("u3")
	assert.True(t, ok)
}
