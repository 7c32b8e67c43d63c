// Package ratelimit implements per-client request limits, shared through
// Redis when configured and kept in process otherwise.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule is a named limit, e.g. 5 requests per minute for "contact".
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Redis counts hits with INCR and expires the key at the end of the window,
// so limits are shared across replicas.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "ratelimit:"}
}

// Ping checks the redis connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	k := r.prefix + rule.Name + ":" + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, rule.Window).Err(); err != nil {
			return Decision{Allowed: true}, err
		}
	}
	if int(n) <= rule.Limit {
		return Decision{Allowed: true, Remaining: rule.Limit - int(n)}, nil
	}
	ttl, err := r.client.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = rule.Window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// Middleware limits requests per client IP. Limiter errors fail open.
// A nil Limiter counts in process with httprate.
func Middleware(l Limiter, rule Rule, log *zap.Logger, deny DenyFunc) func(http.Handler) http.Handler {
	if l == nil {
		return local(rule, deny)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), ClientIP(r), rule)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("rule", rule.Name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			if !d.Allowed {
				secs := int(d.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("X-RateLimit-Remaining", "0")
				deny(w, r, d.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func local(rule Rule, deny DenyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(rule.Limit, rule.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return rule.Name + ":" + ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			retry := rule.Window
			if secs, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && secs > 0 {
				retry = time.Duration(secs) * time.Second
			} else {
				w.Header().Set("Retry-After", strconv.Itoa(int(rule.Window/time.Second)))
			}
			deny(w, r, retry)
		}),
	)
}

// ClientIP returns the host part of RemoteAddr. RealIP middleware upstream
// has already applied X-Forwarded-For / X-Real-IP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
