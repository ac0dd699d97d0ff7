package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplayCacheMarkAndRejectDuplicate(t *testing.T) {
	cache := NewReplayCache()
	token := Token{TimestampMs: testNow.UnixMilli(), SignatureHex: "abcdef"}

	assert.True(t, cache.Mark(token, testNow), "first mark should pass")
	assert.False(t, cache.Mark(token, testNow.Add(time.Second)), "duplicate should fail")

	upper := Token{TimestampMs: token.TimestampMs, SignatureHex: "ABCDEF"}
	assert.False(t, cache.Mark(upper, testNow.Add(time.Second)), "hex case must not bypass the cache")
}

func TestReplayCachePrunesExpiredTokens(t *testing.T) {
	cache := NewReplayCache()
	oldToken := Token{TimestampMs: testNow.UnixMilli(), SignatureHex: "aa"}
	assert.True(t, cache.Mark(oldToken, testNow))
	assert.Equal(t, 1, cache.Len())

	later := testNow.Add(FreshnessWindow + time.Second)
	newToken := Token{TimestampMs: later.UnixMilli(), SignatureHex: "bb"}
	assert.True(t, cache.Mark(newToken, later))
	assert.Equal(t, 1, cache.Len())
}
