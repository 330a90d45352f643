package token

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"libharvest/pkg/logger"
)

// CookieSetter is the slice of the HTTP session the authority needs: the
// ability to install a cookie for the origin.
type CookieSetter interface {
	SetCookie(name, value, domain string)
}

// Authority owns the access token for a run: it loads or obtains the token
// before the first protected request, installs it on the session, persists it
// for the next run, and replaces it when the origin signals expiry.
type Authority struct {
	session CookieSetter
	source  Source
	store   Store
	mirrors []Store
	domain  string
	log     logger.Logger

	mu        sync.Mutex
	current   *Token
	refreshes int
}

// NewAuthority creates a token authority. store is the primary persistence
// backend; mirrors receive best-effort copies (a keychain next to the cookie
// file, for instance) and never fail the run.
func NewAuthority(session CookieSetter, source Source, store Store, domain string, log logger.Logger, mirrors ...Store) *Authority {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Authority{
		session: session,
		source:  source,
		store:   store,
		mirrors: mirrors,
		domain:  domain,
		log:     log,
	}
}

// Ensure makes sure a token is installed on the session, loading the stored
// one or obtaining a fresh one from the source.
func (a *Authority) Ensure(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return nil
	}

	stored, err := a.store.Load()
	if err != nil {
		a.log.WithError(err).Warn("failed to load stored token, prompting for a new one")
		stored = nil
	}

	t, err := a.source.Obtain(ctx, stored)
	if err != nil {
		return err
	}

	a.install(t)
	if t != stored {
		a.persist(t)
	}
	return nil
}

// Refresh discards the current token and obtains a new one from the source.
// Called when the origin answers a protected request with a challenge.
func (a *Authority) Refresh(ctx context.Context, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.refreshes++
	logger.LogTokenRefresh(reason, a.refreshes)

	// Do not offer the failed token back for reuse.
	t, err := a.source.Obtain(ctx, nil)
	if err != nil {
		return err
	}

	a.install(t)
	a.persist(t)
	return nil
}

// Refreshes returns how many times the token was replaced this run.
func (a *Authority) Refreshes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshes
}

// Current returns the installed token, or nil.
func (a *Authority) Current() *Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Authority) install(t *Token) {
	if t.Domain == "" {
		t.Domain = a.domain
	}
	a.session.SetCookie(t.Name, t.Value, t.Domain)
	a.current = t
}

func (a *Authority) persist(t *Token) {
	if err := a.store.Save(t); err != nil {
		a.log.WithError(err).Warn("failed to persist token")
	}
	for _, m := range a.mirrors {
		if err := m.Save(t); err != nil {
			a.log.WithError(err).Debug("failed to mirror token")
		}
	}
}

// challengePreamble is how far into a body the challenge sniff looks.
const challengePreamble = 512

// IsChallengeResponse reports whether a protected-asset response is really a
// bot-protection challenge. The protection layer disguises rejections as
// ordinary pages, so all three disguises are checked: the challenge status
// codes, an HTML content type where an image was expected, and an HTML
// document preamble in the body itself.
func IsChallengeResponse(statusCode int, contentType string, body []byte) bool {
	if statusCode == 202 || statusCode == 403 {
		return true
	}
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return hasHTMLPreamble(body)
}

// hasHTMLPreamble reports whether the body starts with an HTML document
// marker, ignoring leading whitespace and case.
func hasHTMLPreamble(body []byte) bool {
	window := body
	if len(window) > challengePreamble {
		window = window[:challengePreamble]
	}
	trimmed := bytes.ToLower(bytes.TrimLeft(window, " \t\r\n\xef\xbb\xbf"))
	return bytes.HasPrefix(trimmed, []byte("<!doctype")) || bytes.HasPrefix(trimmed, []byte("<html"))
}
