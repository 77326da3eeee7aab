// Copyright 2026 CAP Contributors
//
// Compiled-Policy LRU Cache
//
// Bounded least-recently-used cache keyed by policy_hash, holding the
// compiled artifact {policy, policy_hash, IR, ir_hash}. Backed by
// hashicorp/golang-lru, whose Cache is itself internally mutex-guarded —
// this wrapper exists only to fix the key/value contract and operation
// names the rest of the compiler calls against.

package policy

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is the bounded capacity named by the data model.
const DefaultCacheSize = 1000

// Compiled is the cached compilation artifact for one policy.
type Compiled struct {
	Policy     *Policy
	PolicyHash string
	IR         *IR
	IRHash     string
}

// Cache is a bounded LRU cache of Compiled entries keyed by policy_hash.
type Cache struct {
	inner *lru.Cache
}

// NewCache builds a cache with the given capacity. size <= 0 selects
// DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	inner, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Put inserts or refreshes an entry.
func (c *Cache) Put(policyHash string, entry *Compiled) {
	c.inner.Add(policyHash, entry)
}

// GetAndTouch returns the cached entry for policyHash, marking it
// most-recently-used, or ok=false if absent.
func (c *Cache) GetAndTouch(policyHash string) (entry *Compiled, ok bool) {
	v, found := c.inner.Get(policyHash)
	if !found {
		return nil, false
	}
	return v.(*Compiled), true
}

// Contains reports presence without affecting recency.
func (c *Cache) Contains(policyHash string) bool {
	return c.inner.Contains(policyHash)
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	return c.inner.Len()
}
