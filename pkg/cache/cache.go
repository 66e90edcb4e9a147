package cache

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/porsche-community/porsche-connect/pkg/auth"
)

// Entry is a cached token together with the time it was stored.
type Entry struct {
	Token     auth.Token `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
}

// TokenCache holds OAuth tokens for up to MaxEntries accounts, keyed by account identity
// (typically the login email). Eviction is least-recently-stored: storing a token refreshes its
// entry, loading one does not.
type TokenCache struct {
	MaxEntries int
	Accounts   map[string]Entry `json:"accounts"`
	lock       sync.Mutex
}

// New returns a TokenCache that holds tokens for up to maxEntries accounts.
//
// Set maxEntries to zero for an unbounded cache.
func New(maxEntries int) *TokenCache {
	return &TokenCache{
		MaxEntries: maxEntries,
		Accounts:   make(map[string]Entry),
	}
}

// Import a TokenCache using data in r.
// The data should previously have been generated using [TokenCache.Export].
func Import(r io.Reader) (*TokenCache, error) {
	var cache TokenCache
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Accounts == nil {
		cache.Accounts = make(map[string]Entry)
	}
	return &cache, nil
}

// ImportFromFile reads a TokenCache from disk.
func ImportFromFile(filename string) (*TokenCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized TokenCache to w.
func (c *TokenCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a TokenCache to disk. Session files hold bearer tokens, so they are
// created owner-readable only.
func (c *TokenCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Update stores the token for an account, evicting the least-recently-stored entry if the cache
// is over capacity.
func (c *TokenCache) Update(identity string, token *auth.Token) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.Accounts[identity] = Entry{Token: *token, CreatedAt: time.Now()}
	if c.MaxEntries > 0 && len(c.Accounts) > c.MaxEntries {
		oldestIdentity := identity
		oldestCreationTime := time.Now()
		for id, entry := range c.Accounts {
			if entry.CreatedAt.Before(oldestCreationTime) {
				oldestIdentity = id
				oldestCreationTime = entry.CreatedAt
			}
		}
		delete(c.Accounts, oldestIdentity)
	}
}

// GetToken returns the cached token for an account, if present.
func (c *TokenCache) GetToken(identity string) (*auth.Token, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.Accounts[identity]
	if !ok {
		return nil, false
	}
	token := entry.Token
	return &token, true
}
