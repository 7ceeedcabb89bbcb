package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/config"
)

// RateLimiter is a sliding window limiter keyed by client address. A nil
// client disables limiting.
type RateLimiter struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
	// TrustedProxies is the number of reverse proxies in front of the API.
	// X-Forwarded-For is ignored when it is zero.
	TrustedProxies int
}

// Allow records a hit for key and reports whether it is within the limit,
// along with the number of hits in the current window
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	now := time.Now().UnixNano()
	key = fmt.Sprintf("ratelimit:%s", key)

	pipe := l.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now-l.Window.Nanoseconds(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: fmt.Sprintf("%d-%s", now, uuid.NewString())})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}
	return count.Val() <= int64(l.Limit), count.Val(), nil
}

// Middleware answers 429 once a client exceeds the limit on the wrapped
// routes. Redis failures let the request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.Client == nil || l.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, count, err := l.Allow(r.Context(), ClientIP(r, l.TrustedProxies))
		if err != nil {
			zap.S().Warnw("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(l.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.Window.Seconds())))
			config.ErrorStatus("Too many requests, please try again later", http.StatusTooManyRequests, w, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the address the request is keyed on. With trusted proxies
// it is the hop the outermost of them appended to X-Forwarded-For, since
// anything to the left of that was supplied by the client.
func ClientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		if hops := strings.Split(r.Header.Get("X-Forwarded-For"), ","); len(hops) > 0 {
			i := len(hops) - trustedProxies
			if i < 0 {
				i = 0
			}
			if ip := strings.TrimSpace(hops[i]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
