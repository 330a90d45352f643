package token

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the token in a plain JSON cookie file. The on-disk
// format is a browser-export style list of cookie objects so operators can
// drop in a file exported by a cookie extension unchanged. A legacy single
// object form is also accepted on read.
type FileStore struct {
	path       string
	cookieName string
	mu         sync.Mutex
}

// NewFileStore creates a file-backed token store. cookieName selects which
// entry of the cookie list belongs to this tool.
func NewFileStore(path, cookieName string) *FileStore {
	return &FileStore{path: path, cookieName: cookieName}
}

// Load reads the token from the cookie file. A missing or malformed file is
// treated as no stored token, not an error, so a stale or hand-mangled file
// never blocks a run.
func (s *FileStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var cookies []Token
	if err := json.Unmarshal(content, &cookies); err == nil {
		for _, c := range cookies {
			if c.Name == s.cookieName && c.Value != "" {
				cookie := c
				return &cookie, nil
			}
		}
		return nil, nil
	}

	// Legacy form: a single cookie object
	var single Token
	if err := json.Unmarshal(content, &single); err == nil {
		if single.Name == s.cookieName && single.Value != "" {
			return &single, nil
		}
		return nil, nil
	}

	return nil, nil
}

// Save writes the token back in list form, preserving any other cookies
// already present in the file.
func (s *FileStore) Save(t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == nil || t.Value == "" {
		return fmt.Errorf("refusing to save empty token")
	}

	cookies := s.loadAll()
	replaced := false
	for i := range cookies {
		if cookies[i].Name == t.Name {
			cookies[i] = *t
			replaced = true
			break
		}
	}
	if !replaced {
		cookies = append(cookies, *t)
	}

	content, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	// Write to temporary file first
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tempFile, s.path)
}

// Clear removes the cookie file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// loadAll returns every parseable cookie in the file, or nil.
func (s *FileStore) loadAll() []Token {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var cookies []Token
	if err := json.Unmarshal(content, &cookies); err == nil {
		return cookies
	}

	var single Token
	if err := json.Unmarshal(content, &single); err == nil && single.Name != "" {
		return []Token{single}
	}
	return nil
}
