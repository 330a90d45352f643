// Package httpclient provides the single HTTP session a harvest run goes
// through. Every request shares one cookie jar, one rate limiter and one
// retry policy, so a token installed mid-run covers all later requests.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"libharvest/pkg/config"
	errs "libharvest/pkg/errors"
	"libharvest/pkg/logger"
	"libharvest/pkg/retry"
)

// Options controls a single request.
type Options struct {
	// Browser sends the browser user agent instead of the tool one. Protected
	// asset endpoints check it.
	Browser bool
	// Referer is sent when non-empty.
	Referer string
	// Cacheable allows serving and storing this page from the disk cache.
	Cacheable bool
	// Timeout overrides the session default for this request.
	Timeout time.Duration
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FromCache  bool
}

// ContentType returns the response content type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Session is the shared HTTP client for a run.
type Session struct {
	client  *http.Client
	jar     http.CookieJar
	limiter *rate.Limiter
	cache   *Cache
	cfg     *config.HTTPConfig
	retry   *config.RetryConfig
	log     logger.Logger
}

// NewSession creates the run-wide HTTP session.
func NewSession(cfg *config.HTTPConfig, retryCfg *config.RetryConfig, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var cache *Cache
	if cfg.CacheEnabled {
		dir := cfg.CacheDir
		if dir == "" {
			if base, err := os.UserCacheDir(); err == nil {
				dir = filepath.Join(base, "libharvest", "pages")
			} else {
				dir = filepath.Join(os.TempDir(), "libharvest-pages")
			}
		}
		cache, err = NewCache(dir, cfg.CacheEntries, cfg.CacheMaxAge)
		if err != nil {
			log.WithError(err).Warn("page cache disabled")
			cache = nil
		}
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &Session{
		client: &http.Client{
			Jar: jar,
			// Per-request timeouts come from the context; the client itself
			// stays unbounded so slow native downloads are not cut off.
		},
		jar:     jar,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		cache:   cache,
		cfg:     cfg,
		retry:   retryCfg,
		log:     log,
	}, nil
}

// SetCookie installs a cookie for the given domain on the shared jar. All
// subsequent requests to that domain carry it.
func (s *Session) SetCookie(name, value, domain string) {
	host := strings.TrimPrefix(domain, ".")
	u := &url.URL{Scheme: "https", Host: host}
	s.jar.SetCookies(u, []*http.Cookie{{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   "/",
	}})
}

// Get fetches a URL and buffers the full body. Transient faults (network
// errors, 429, 5xx) are retried with exponential backoff; every other status
// is returned to the caller as data, because challenge responses and absent
// assets are signal, not failure, at this layer.
func (s *Session) Get(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if opts.Cacheable && s.cache != nil {
		if body, ok := s.cache.Get(rawURL); ok {
			s.log.WithField("url", rawURL).Debug("page served from cache")
			return &Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/html"}},
				Body:       body,
				FromCache:  true,
			}, nil
		}
	}

	resp, err := retry.DoWithResult(func() (*Response, error) {
		return s.doOnce(ctx, rawURL, opts)
	}, &retry.Config{
		MaxAttempts: s.retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    s.retry.BaseDelay,
			MaxDelay:     s.retry.MaxDelay,
			Multiplier:   s.retry.Multiplier,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  s.log,
	})
	if err != nil {
		return nil, err
	}

	if opts.Cacheable && s.cache != nil && resp.StatusCode == http.StatusOK &&
		strings.Contains(strings.ToLower(resp.ContentType()), "text/html") {
		if err := s.cache.Put(rawURL, resp.Body); err != nil {
			s.log.WithError(err).WithField("url", rawURL).Debug("failed to cache page")
		}
	}

	return resp, nil
}

// doOnce performs a single attempt.
func (s *Session) doOnce(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.PageTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "invalid request for %s: %v", rawURL, err)
	}

	if opts.Browser {
		req.Header.Set("User-Agent", s.cfg.BrowserUserAgent)
		req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	} else {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "failed to read body: %v", err)
	}

	logger.LogRequest(http.MethodGet, rawURL, resp.StatusCode, float64(time.Since(start).Milliseconds()))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errs.New(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limited by origin")
	case resp.StatusCode >= 500:
		return nil, errs.New(errs.ErrorTypeServerError, resp.StatusCode, "server error")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// DownloadTimeout returns the configured asset download timeout.
func (s *Session) DownloadTimeout() time.Duration {
	return s.cfg.DownloadTimeout
}
