// Package cache implements the shared reply cache for the message pipeline.
//
// Entries are keyed by the normalized question text, not by author: identical
// questions from different users share one generated answer. That trades a
// small personalization loss for a large generation-cost saving and is a
// deliberate product decision, not an oversight.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// entry is one cached reply with its creation time.
type entry struct {
	reply     string
	createdAt time.Time
}

// fold collapses case across scripts; strings.ToLower alone mishandles a few
// locales the bot sees in the wild.
var fold = cases.Fold()

// Normalize derives the cache key from raw message text: surrounding
// whitespace trimmed and case folded. Matching is exact; there is no fuzzy
// lookup.
func Normalize(text string) string {
	return fold.String(strings.TrimSpace(text))
}

// ReplyCache is a TTL-bounded map of generated replies keyed by normalized
// question text. Expiry is lazy on Get; Sweep purges whatever Get has not
// touched. Safe for concurrent use.
type ReplyCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry

	now func() time.Time
}

// NewReplyCache constructs a ReplyCache with the given entry lifetime.
func NewReplyCache(ttl time.Duration) *ReplyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReplyCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached reply for the normalized key. A present-but-expired
// entry is removed and reported absent, so a reply older than the TTL is
// never served.
func (c *ReplyCache) Get(key string) (string, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if now.Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.reply, true
}

// Put stores reply under the normalized key, overwriting any previous entry
// and restarting its TTL. Writes for the same key are idempotent in effect,
// so cross-author races on a shared question are harmless.
func (c *ReplyCache) Put(key, reply string) {
	now := c.now()

	c.mu.Lock()
	c.entries[key] = entry{reply: reply, createdAt: now}
	c.mu.Unlock()
}

// Sweep removes expired entries, returning the number evicted. Called
// periodically by the maintenance sweeper.
func (c *ReplyCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, for metrics and tests.
func (c *ReplyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
