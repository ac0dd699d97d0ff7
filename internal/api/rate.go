package api

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client key. A bucket refills at
// perMinute tokens a minute and holds at most perMinute tokens. Buckets idle
// for limiterIdleTTL are dropped.
type clientLimiter struct {
	mutex     sync.Mutex
	buckets   map[string]*clientBucket
	perMinute int
	nextSweep time.Time
}

// newClientLimiter returns nil when perMinute is not positive; a nil limiter
// allows everything.
func newClientLimiter(perMinute int) *clientLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &clientLimiter{
		buckets:   make(map[string]*clientBucket),
		perMinute: perMinute,
	}
}

func (limiter *clientLimiter) allow(bucketKey string, now time.Time) bool {
	if limiter == nil {
		return true
	}
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if now.After(limiter.nextSweep) {
		for cachedKey, bucket := range limiter.buckets {
			if now.Sub(bucket.lastSeen) > limiterIdleTTL {
				delete(limiter.buckets, cachedKey)
			}
		}
		limiter.nextSweep = now.Add(limiterIdleTTL)
	}

	bucket, exists := limiter.buckets[bucketKey]
	if !exists {
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(limiter.perMinute)), limiter.perMinute),
		}
		limiter.buckets[bucketKey] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (limiter *clientLimiter) size() int {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.buckets)
}

// rateKey identifies a client by origin and remote host; the port is dropped.
func rateKey(remoteAddress string, originHeader string) string {
	hostPart, _, splitError := net.SplitHostPort(remoteAddress)
	if splitError != nil {
		hostPart = remoteAddress
	}
	return originHeader + "|" + hostPart
}
