package httpclient

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a disk-backed page cache with an LRU index. Only successful HTML
// page bodies go in it; asset downloads are never cached because their
// validity depends on the token that fetched them.
type Cache struct {
	dir    string
	maxAge time.Duration
	index  *lru.Cache[string, string]
}

// NewCache creates a page cache rooted at dir holding at most maxEntries
// pages. Entries older than maxAge are treated as misses and removed, so a
// long-lived cache directory cannot hide collection growth from later runs;
// maxAge <= 0 disables expiry. Entries evicted from the index are removed
// from disk.
func NewCache(dir string, maxEntries int, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	index, err := lru.NewWithEvict[string, string](maxEntries, func(key, path string) {
		_ = os.Remove(path)
	})
	if err != nil {
		return nil, err
	}

	c := &Cache{dir: dir, maxAge: maxAge, index: index}
	c.loadExisting()
	return c, nil
}

// loadExisting seeds the index from files left by previous runs.
func (c *Cache) loadExisting() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		key := e.Name()[:len(e.Name())-len(".html")]
		c.index.Add(key, filepath.Join(c.dir, e.Name()))
	}
}

// Get returns the cached body for a URL, if present and not expired.
func (c *Cache) Get(url string) ([]byte, bool) {
	key := cacheKey(url)
	path, ok := c.index.Get(key)
	if !ok {
		return nil, false
	}

	if c.maxAge > 0 {
		fi, err := os.Stat(path)
		if err != nil || time.Since(fi.ModTime()) > c.maxAge {
			// Removal from the index deletes the file via the evict hook.
			c.index.Remove(key)
			return nil, false
		}
	}

	body, err := os.ReadFile(path)
	if err != nil {
		c.index.Remove(key)
		return nil, false
	}
	return body, true
}

// Put stores a page body for a URL.
func (c *Cache) Put(url string, body []byte) error {
	key := cacheKey(url)
	path := filepath.Join(c.dir, key+".html")

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, body, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return err
	}

	c.index.Add(key, path)
	return nil
}

// Len returns the number of indexed entries.
func (c *Cache) Len() int {
	return c.index.Len()
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}
