package token

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libharvest/pkg/logger"
)

func TestFileStoreLoadsBrowserExportList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser_cookies.json")
	content := `[
  {"name": "session", "value": "abc", "domain": "digital.example.org"},
  {"name": "aws-waf-token", "value": "tok-123", "domain": "digital.example.org"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	store := NewFileStore(path, "aws-waf-token")
	tok, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "tok-123", tok.Value)
	assert.Equal(t, "digital.example.org", tok.Domain)
}

func TestFileStoreLoadsLegacySingleObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser_cookies.json")
	content := `{"name": "aws-waf-token", "value": "tok-legacy", "domain": "digital.example.org"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	store := NewFileStore(path, "aws-waf-token")
	tok, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "tok-legacy", tok.Value)
}

func TestFileStoreMissingAndMalformedAreAbsent(t *testing.T) {
	dir := t.TempDir()

	store := NewFileStore(filepath.Join(dir, "nope.json"), "aws-waf-token")
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	mangled := filepath.Join(dir, "mangled.json")
	require.NoError(t, os.WriteFile(mangled, []byte("{not json"), 0600))
	store = NewFileStore(mangled, "aws-waf-token")
	tok, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileStoreCookieNotInList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser_cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "other", "value": "x", "domain": "d"}]`), 0600))

	store := NewFileStore(path, "aws-waf-token")
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileStoreSavePreservesOtherCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser_cookies.json")
	content := `[{"name": "session", "value": "abc", "domain": "d"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	store := NewFileStore(path, "aws-waf-token")
	require.NoError(t, store.Save(&Token{Name: "aws-waf-token", Value: "fresh", Domain: "d"}))

	all := store.loadAll()
	require.Len(t, all, 2)

	tok, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "fresh", tok.Value)
}

func TestFileStoreSaveReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "browser_cookies.json")
	store := NewFileStore(path, "aws-waf-token")

	require.NoError(t, store.Save(&Token{Name: "aws-waf-token", Value: "one", Domain: "d"}))
	require.NoError(t, store.Save(&Token{Name: "aws-waf-token", Value: "two", Domain: "d"}))

	all := store.loadAll()
	require.Len(t, all, 1)
	assert.Equal(t, "two", all[0].Value)
}

func TestFileStoreRejectsEmptyToken(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "c.json"), "aws-waf-token")
	assert.Error(t, store.Save(&Token{Name: "aws-waf-token"}))
	assert.Error(t, store.Save(nil))
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	store := NewFileStore(path, "aws-waf-token")
	require.NoError(t, store.Save(&Token{Name: "aws-waf-token", Value: "v", Domain: "d"}))

	require.NoError(t, store.Clear())
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	// Clearing an already-absent store is fine.
	require.NoError(t, store.Clear())
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("LIBHARVEST_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "token.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	want := &Token{Name: "aws-waf-token", Value: "secret-value", Domain: "d"}
	require.NoError(t, store.Save(want))

	// The value must not appear in plaintext on disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-value")

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Value, got.Value)

	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIsChallengeResponse(t *testing.T) {
	imageBody := make([]byte, 2048)
	copy(imageBody, []byte{0xff, 0xd8, 0xff})

	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		want        bool
	}{
		{"challenge status 202", 202, "image/jpeg", imageBody, true},
		{"challenge status 403", 403, "image/jpeg", imageBody, true},
		{"html content type", 200, "text/html; charset=utf-8", imageBody, true},
		{"doctype preamble", 200, "image/jpeg", []byte("<!DOCTYPE html><html>"), true},
		{"html preamble with leading whitespace", 200, "image/jpeg", []byte("\n\t <html lang=\"en\">"), true},
		{"clean image", 200, "image/jpeg", imageBody, false},
		{"clean tiff", 200, "image/tiff", []byte{'I', 'I', 0x2a, 0x00, 0x01}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsChallengeResponse(tt.status, tt.contentType, tt.body))
		})
	}
}

type fakeSetter struct {
	cookies []Token
}

func (f *fakeSetter) SetCookie(name, value, domain string) {
	f.cookies = append(f.cookies, Token{Name: name, Value: value, Domain: domain})
}

type memoryStore struct {
	token *Token
	saves int
}

func (m *memoryStore) Load() (*Token, error) { return m.token, nil }
func (m *memoryStore) Save(t *Token) error   { m.token = t; m.saves++; return nil }
func (m *memoryStore) Clear() error          { m.token = nil; return nil }

type recordingSource struct {
	tokens   []*Token
	existing []*Token
}

func (r *recordingSource) Obtain(ctx context.Context, existing *Token) (*Token, error) {
	r.existing = append(r.existing, existing)
	next := r.tokens[0]
	r.tokens = r.tokens[1:]
	return next, nil
}

func TestAuthorityEnsureUsesStoredToken(t *testing.T) {
	setter := &fakeSetter{}
	stored := &Token{Name: "aws-waf-token", Value: "stored", Domain: "d"}
	store := &memoryStore{token: stored}
	source := &recordingSource{tokens: []*Token{stored}}

	a := NewAuthority(setter, source, store, "d", logger.NewNopLogger())
	require.NoError(t, a.Ensure(context.Background()))

	// The stored token was offered to the source.
	require.Len(t, source.existing, 1)
	assert.Equal(t, "stored", source.existing[0].Value)

	require.Len(t, setter.cookies, 1)
	assert.Equal(t, "stored", setter.cookies[0].Value)
	// Reusing the stored token does not rewrite the store.
	assert.Equal(t, 0, store.saves)

	// Ensure is idempotent once installed.
	require.NoError(t, a.Ensure(context.Background()))
	assert.Len(t, setter.cookies, 1)
}

func TestAuthorityRefreshDoesNotOfferFailedToken(t *testing.T) {
	setter := &fakeSetter{}
	store := &memoryStore{}
	source := &recordingSource{tokens: []*Token{
		{Name: "aws-waf-token", Value: "first", Domain: "d"},
		{Name: "aws-waf-token", Value: "second", Domain: "d"},
	}}

	a := NewAuthority(setter, source, store, "d", logger.NewNopLogger())
	require.NoError(t, a.Ensure(context.Background()))
	require.NoError(t, a.Refresh(context.Background(), "challenge on native download"))

	require.Len(t, source.existing, 2)
	assert.Nil(t, source.existing[1])

	assert.Equal(t, 1, a.Refreshes())
	assert.Equal(t, "second", a.Current().Value)
	assert.Equal(t, "second", store.token.Value)

	require.Len(t, setter.cookies, 2)
	assert.Equal(t, "second", setter.cookies[1].Value)
}

func TestAuthorityFillsDomainFromDefault(t *testing.T) {
	setter := &fakeSetter{}
	store := &memoryStore{}
	source := &recordingSource{tokens: []*Token{{Name: "aws-waf-token", Value: "v"}}}

	a := NewAuthority(setter, source, store, "digital.example.org", logger.NewNopLogger())
	require.NoError(t, a.Ensure(context.Background()))

	require.Len(t, setter.cookies, 1)
	assert.Equal(t, "digital.example.org", setter.cookies[0].Domain)
}

func TestStaticSource(t *testing.T) {
	s := &StaticSource{Token: Token{Name: "n", Value: "v", Domain: "d"}}
	tok, err := s.Obtain(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v", tok.Value)
}
