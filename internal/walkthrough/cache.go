// File: internal/walkthrough/cache.go
package walkthrough

import "sync"

// SelectorCache maps step identities to the selector that last resolved them.
// Entries are never trusted blindly: the Resolver re-queries the live page on
// every hit and evicts selectors that stopped matching.
type SelectorCache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewSelectorCache returns an empty cache.
func NewSelectorCache() *SelectorCache {
	return &SelectorCache{entries: make(map[string]string)}
}

func (c *SelectorCache) Get(identity string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, ok := c.entries[identity]
	return sel, ok
}

// Put stores selector for identity, overwriting any previous entry.
func (c *SelectorCache) Put(identity, selector string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity] = selector
}

func (c *SelectorCache) Delete(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}

// Clear drops every entry. Called whenever a new collection is loaded.
func (c *SelectorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

func (c *SelectorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
