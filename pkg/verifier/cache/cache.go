// Package cache wraps a verifier with an in-memory cache of successful
// verifications. Entries expire after a TTL and the least recently used
// entry is evicted once the cache is full.
//
// Only successes are cached. A revoked token keeps working for at most
// one TTL.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/rhuss/tokenauth/pkg/observability"
	"github.com/rhuss/tokenauth/pkg/token"
)

// Defaults for Config fields.
const (
	DefaultTTL     = 30 * time.Second
	DefaultMaxSize = 10000
)

// Config holds cache settings.
type Config struct {
	TTL     time.Duration
	MaxSize int
}

type key [sha256.Size]byte

type entry struct {
	key       key
	user      any
	info      any
	expiresAt time.Time
	lruElem   *list.Element
}

// Cache is a caching verifier.
type Cache struct {
	next    token.VerifyFunc
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[key]*entry
	lruList *list.List // front = most recently used
}

// New wraps next.
func New(next token.VerifyFunc, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Cache{
		next:    next,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		now:     time.Now,
		entries: make(map[key]*entry),
		lruList: list.New(),
	}
}

// cacheKey hashes the credential pair so plaintext tokens are not held.
func cacheKey(username, tok string) key {
	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write([]byte(tok))
	var k key
	copy(k[:], h.Sum(nil))
	return k
}

// Verify answers from the cache or delegates to the wrapped verifier.
func (c *Cache) Verify(ctx context.Context, username, tok string, done token.DoneFunc) {
	k := cacheKey(username, tok)
	if e, ok := c.get(k); ok {
		observability.VerifierCacheTotal.WithLabelValues("hit").Inc()
		done(nil, e.user, e.info)
		return
	}
	observability.VerifierCacheTotal.WithLabelValues("miss").Inc()

	c.next(ctx, username, tok, func(err error, user, info any) {
		if err == nil && user != nil {
			c.put(k, user, info)
		}
		done(err, user, info)
	})
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]*entry)
	c.lruList.Init()
}

func (c *Cache) get(k key) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(e)
		return nil, false
	}
	c.lruList.MoveToFront(e.lruElem)
	return e, true
}

func (c *Cache) put(k key, user, info any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok {
		e.user, e.info = user, info
		e.expiresAt = c.now().Add(c.ttl)
		c.lruList.MoveToFront(e.lruElem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry{key: k, user: user, info: info, expiresAt: c.now().Add(c.ttl)}
	e.lruElem = c.lruList.PushFront(e)
	c.entries[k] = e
}

// evictOldest removes the least recently used entry. Must be called with
// mu held.
func (c *Cache) evictOldest() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.remove(back.Value.(*entry))
}

func (c *Cache) remove(e *entry) {
	c.lruList.Remove(e.lruElem)
	delete(c.entries, e.key)
}
