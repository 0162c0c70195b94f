package natives

import (
	"sync"

	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Cache maps extern functions to bindings by name, for modules that
// declare externs without an interop declaration. Keys are the module's
// cleaned package name followed by the qualified function name, e.g.
// "acme/io/File.read". A build session owns one cache and clears it
// between builds.
type Cache struct {
	entries map[string]*Binding
	mu      sync.RWMutex
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Binding)}
}

// CacheKey returns the lookup key of function qualified in module id.
func CacheKey(id ir.ModuleID, qualified string) string {
	return symbols.PackageName(id) + qualified
}

// Add maps key to b.
func (c *Cache) Add(key string, b *Binding) {
	c.mu.Lock()
	c.entries[key] = b
	c.mu.Unlock()
}

// Lookup returns the binding mapped to key.
func (c *Cache) Lookup(key string) (*Binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

// Len returns the number of mappings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every mapping.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Binding)
	c.mu.Unlock()
}
