package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"storygen-backend/internal/shared/metrics"
	"storygen-backend/internal/shared/server/respond"
)

const (
	// A bucket idle this long is full again, so forgetting it changes nothing.
	bucketIdle     = 10 * time.Minute
	bucketCapacity = 10000
)

// Policy is a token bucket refilled at Rate tokens per second up to Burst.
type Policy struct {
	Rate  float64
	Burst int
}

func (p Policy) unlimited() bool { return p.Rate <= 0 || p.Burst <= 0 }

// ThrottleConfig assigns each request a class and each class a policy.
// Classes without a policy are not throttled.
type ThrottleConfig struct {
	Policies map[string]Policy
	Classify func(*gin.Context) string
	Buckets  *Buckets
}

// Buckets tracks a limiter per caller and class. Idle limiters expire.
type Buckets struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *rate.Limiter]
	now   func() time.Time
}

// NewBuckets returns an empty set. A nil clock uses time.Now.
func NewBuckets(now func() time.Time) *Buckets {
	if now == nil {
		now = time.Now
	}
	return &Buckets{
		cache: expirable.NewLRU[string, *rate.Limiter](bucketCapacity, nil, bucketIdle),
		now:   now,
	}
}

func (b *Buckets) limiter(key string, p Policy) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.cache.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.Rate), p.Burst)
	}
	// Re-adding refreshes the idle expiry.
	b.cache.Add(key, lim)
	return lim
}

// Take spends one token from key's bucket or reports the wait until one refills.
func (b *Buckets) Take(key string, p Policy) (bool, time.Duration) {
	if b == nil || p.unlimited() {
		return true, 0
	}
	now := b.now()
	res := b.limiter(key, p).ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	wait := res.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, wait
}

// Len reports how many buckets are live.
func (b *Buckets) Len() int {
	return b.cache.Len()
}

// Throttle rejects callers that exhaust their class budget with 429 and Retry-After.
// Callers are keyed by the authenticated caller id, or by client IP before auth.
func Throttle(cfg ThrottleConfig) gin.HandlerFunc {
	if cfg.Buckets == nil {
		cfg.Buckets = NewBuckets(nil)
	}
	return func(c *gin.Context) {
		class := "default"
		if cfg.Classify != nil {
			if got := strings.TrimSpace(cfg.Classify(c)); got != "" {
				class = got
			}
		}
		policy, ok := cfg.Policies[class]
		if !ok {
			c.Next()
			return
		}

		who := CallerIDFromContext(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		allowed, wait := cfg.Buckets.Take(class+"/"+who, policy)
		if allowed {
			c.Next()
			return
		}

		retryAfter := max(1, int(math.Ceil(wait.Seconds())))
		metrics.IncThrottled(class)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		respond.Error(c, http.StatusTooManyRequests, respond.CodeRateLimited, "too many requests", gin.H{
			"class":             class,
			"retryAfterSeconds": retryAfter,
		})
	}
}
