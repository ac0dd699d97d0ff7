package auth

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReplayCache remembers verified tokens until their freshness window closes so
// a captured token cannot be used twice.
type ReplayCache struct {
	mutex sync.Mutex
	seen  map[string]time.Time
}

func NewReplayCache() *ReplayCache {
	return &ReplayCache{seen: make(map[string]time.Time)}
}

// Mark records token and reports whether it was unseen. Expired entries are
// pruned on every call.
func (cache *ReplayCache) Mark(token Token, now time.Time) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for cachedToken, expiresAt := range cache.seen {
		if !expiresAt.After(now) {
			delete(cache.seen, cachedToken)
		}
	}
	cacheKey := strconv.FormatInt(token.TimestampMs, 10) + "." + strings.ToLower(token.SignatureHex)
	if _, exists := cache.seen[cacheKey]; exists {
		return false
	}
	// One millisecond past the window so a token at the very edge stays marked.
	cache.seen[cacheKey] = time.UnixMilli(token.TimestampMs).Add(FreshnessWindow + time.Millisecond)
	return true
}

// Len returns the number of tokens currently remembered.
func (cache *ReplayCache) Len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return len(cache.seen)
}
