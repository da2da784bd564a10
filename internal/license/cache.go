package license

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	apperrors "credguard/internal/errors"
)

// HashCredential returns the SHA-256 hex digest used as cache key and revocation id
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// CacheEntry is a cached validation outcome
type CacheEntry struct {
	Outcome    ValidationOutcome `json:"outcome"`
	InsertedAt time.Time         `json:"inserted_at"`
	TTL        time.Duration     `json:"ttl"`
	HitCount   int               `json:"hit_count"`
}

func (e CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) > e.TTL
}

// CacheStats is a point-in-time view of the cache counters
type CacheStats struct {
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
	TTL       float64 `json:"ttl_seconds"`
}

// ValidationCache keeps valid outcomes keyed by credential hash. Expired entries are
// swept on every Put and never returned by Get.
type ValidationCache struct {
	entries   map[string]CacheEntry
	mutex     sync.Mutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	evictions int64
	now       func() time.Time
}

// NewValidationCache creates a cache. maxSize <= 0 means unbounded.
func NewValidationCache(ttl time.Duration, maxSize int) *ValidationCache {
	return &ValidationCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the live entry for credential
func (c *ValidationCache) Get(credential string) (*CacheEntry, bool) {
	return c.GetByHash(HashCredential(credential))
}

// GetByHash is Get for an already hashed credential
func (c *ValidationCache) GetByHash(hash string) (*CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[hash]
	if !exists || entry.expired(c.now()) {
		c.missCount++
		return nil, false
	}

	entry.HitCount++
	c.entries[hash] = entry
	c.hitCount++

	out := entry
	return &out, true
}

// Put stores a valid outcome. Invalid outcomes are rejected with a CacheWriteError.
func (c *ValidationCache) Put(credential string, outcome ValidationOutcome) error {
	if !outcome.Valid {
		return apperrors.NewCacheWriteError(errors.New("only valid outcomes are cached"))
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	c.sweep(now)

	key := HashCredential(credential)
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = CacheEntry{
		Outcome:    outcome,
		InsertedAt: now,
		TTL:        c.ttl,
	}
	return nil
}

// Invalidate removes the entry for a credential hash and reports whether one existed
func (c *ValidationCache) Invalidate(hash string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, ok := c.entries[hash]
	delete(c.entries, hash)
	return ok
}

// Len returns the number of stored entries, expired ones included until the next sweep
func (c *ValidationCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *ValidationCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hitCount + c.missCount
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}

	return CacheStats{
		Entries:   len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hitCount,
		Misses:    c.missCount,
		Evictions: c.evictions,
		HitRatio:  ratio,
		TTL:       c.ttl.Seconds(),
	}
}

func (c *ValidationCache) sweep(now time.Time) {
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			c.evictions++
		}
	}
}

func (c *ValidationCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.InsertedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.InsertedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}
