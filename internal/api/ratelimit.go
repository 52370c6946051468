package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/cbquant/pkg/logger"
	"github.com/wonny/cbquant/pkg/redis"
)

// RateLimiter limits requests per client.
// With Redis enabled the window is shared across API instances;
// otherwise each process keeps its own token buckets.
type RateLimiter struct {
	perSecond float64
	burst     int
	redis     *redis.RateLimiter
	logger    *logger.Logger

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter; distributed may be nil
func NewRateLimiter(perSecond float64, burst int, distributed *redis.RateLimiter, log *logger.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: perSecond,
		burst:     burst,
		redis:     distributed,
		logger:    log,
		buckets:   make(map[string]*rate.Limiter),
	}
}

// Allow reports whether client may make a request now and, if not, how long to wait
func (l *RateLimiter) Allow(ctx context.Context, client string) (bool, time.Duration) {
	if l.perSecond <= 0 {
		return true, 0
	}

	if l.redis != nil && l.redis.Enabled() {
		d, err := l.redis.Allow(ctx, redis.APIRateLimit(client, l.perSecond))
		if err == nil {
			return d.Allowed, d.RetryAfter
		}
		// Redis 장애 시 로컬 버킷으로 대체
		l.logger.WithError(err).Warn("Distributed rate limit failed, using local limiter")
	}

	res := l.bucket(client).Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *RateLimiter) bucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.buckets[client] = b
	}
	return b
}

// clientKey identifies the caller by remote IP
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfterSeconds renders a wait as a Retry-After value, at least 1
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
