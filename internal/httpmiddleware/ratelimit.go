package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address.
func ClientIP(c *gin.Context) string { return c.ClientIP() }

// SimpleTokenBucket is an in-memory per-key rate limiter.
type SimpleTokenBucket struct {
	capacity  int
	rate      int
	mu        sync.Mutex
	state     map[string]*bucket
	nextPrune int
	now       func() time.Time
}

// pruneAt is the bucket count above which idle buckets are dropped. Keys
// rotate, so without pruning the map would only grow.
const pruneAt = 4096

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity:  capacity,
		rate:      perMinute,
		state:     make(map[string]*bucket),
		nextPrune: pruneAt,
		now:       time.Now,
	}
}

// GinMiddleware returns a gin handler enforcing limits per key. A nil key
// function falls back to the client IP.
func (l *SimpleTokenBucket) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIP
	}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = "unknown"
		}
		if !l.allow(k) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many scans, slow down."})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	if l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		if len(l.state) >= l.nextPrune {
			l.prune(now)
		}
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// prune drops buckets idle long enough to have refilled completely; a fresh
// bucket for the same key behaves identically. The next sweep waits until the
// surviving set has doubled, so a burst of live keys costs amortised O(1).
func (l *SimpleTokenBucket) prune(now time.Time) {
	full := time.Duration(float64(l.capacity) / float64(l.rate) * float64(time.Minute))
	for k, b := range l.state {
		if now.Sub(b.last) >= full {
			delete(l.state, k)
		}
	}
	l.nextPrune = 2 * len(l.state)
	if l.nextPrune < pruneAt {
		l.nextPrune = pruneAt
	}
}
