package keyfold

import (
	"crypto/sha256"
	"sync"

	"github.com/mr-tron/base58"
)

// cacheEntry maps a key fingerprint to the identity it belongs to. The
// cache is local and non-authoritative: the identity contract's
// authorized-key list is the source of truth, this only short-circuits
// obvious link conflicts and decorates UI lookups.
type cacheEntry struct {
	Address string
	Label   string
	KeyType string
}

type keyAddressCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newKeyAddressCache() *keyAddressCache {
	return &keyAddressCache{entries: make(map[string]cacheEntry)}
}

func (c *keyAddressCache) get(fp string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[fp]
	return entry, ok
}

func (c *keyAddressCache) put(fp string, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = entry
}

func (c *keyAddressCache) remove(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp)
}

// fingerprint is a short, non-reversible identifier for a signing key,
// usable in link records and logs without exposing the key.
func fingerprint(signing []byte) string {
	sum := sha256.Sum256(signing)
	return base58.Encode(sum[:8])
}
