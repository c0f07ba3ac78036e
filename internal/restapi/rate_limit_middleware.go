package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/metrosign/metrosign/internal/app"
	"github.com/metrosign/metrosign/internal/clock"
)

const (
	anonymousKey      = "__no_key__"
	limiterIdleExpiry = 10 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// RateLimitMiddleware limits requests per API key. Requests without a key
// share one anonymous bucket.
type RateLimitMiddleware struct {
	mu       sync.RWMutex
	clients  map[string]*rateLimitClient
	limit    rate.Limit
	burst    int
	exempt   map[string]bool
	clock    clock.Clock
	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimitMiddleware allows perInterval requests every interval for each
// key, with a burst of perInterval. perInterval == 0 rejects everything and
// a negative value disables limiting.
func NewRateLimitMiddleware(perInterval int, interval time.Duration, exemptKeys []string, c clock.Clock) *RateLimitMiddleware {
	var limit rate.Limit
	switch {
	case perInterval < 0:
		limit = rate.Inf
	case perInterval == 0:
		limit = 0
	default:
		limit = rate.Every(interval / time.Duration(perInterval))
	}

	exempt := make(map[string]bool, len(exemptKeys))
	for _, key := range exemptKeys {
		if key = strings.TrimSpace(key); key != "" {
			exempt[key] = true
		}
	}

	rl := &RateLimitMiddleware{
		clients: make(map[string]*rateLimitClient),
		limit:   limit,
		burst:   max(perInterval, 0),
		exempt:  exempt,
		clock:   c,
		ticker:  time.NewTicker(limiterSweepEvery),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Handler returns the middleware.
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := app.RequestAPIKey(r)
			if key == "" {
				key = anonymousKey
			}
			if rl.exempt[key] || rl.limiterFor(key).Allow() {
				next.ServeHTTP(w, r)
				return
			}
			rl.reject(w)
		})
	}
}

func (rl *RateLimitMiddleware) limiterFor(key string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	client, ok := rl.clients[key]
	rl.mu.RUnlock()
	if ok {
		client.lastSeen.Store(now)
		return client.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if client, ok = rl.clients[key]; !ok {
		client = &rateLimitClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen.Store(now)
	return client.limiter
}

func (rl *RateLimitMiddleware) reject(w http.ResponseWriter) {
	retryAfter := time.Second
	switch rl.limit {
	case 0:
		retryAfter = time.Hour
	case rate.Inf:
	default:
		if every := time.Duration(float64(time.Second) / float64(rl.limit)); every > retryAfter {
			retryAfter = every
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	err := json.NewEncoder(w).Encode(Response{
		Code:        http.StatusTooManyRequests,
		CurrentTime: rl.clock.NowUnixMilli(),
		Text:        "rate limit exceeded, try again later",
	})
	if err != nil {
		slog.Error("failed to encode rate limit response", "error", err)
	}
}

// sweep drops limiters idle for longer than limiterIdleExpiry.
func (rl *RateLimitMiddleware) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, client := range rl.clients {
		if now.Sub(time.Unix(0, client.lastSeen.Load())) > limiterIdleExpiry {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimitMiddleware) sweepLoop() {
	for {
		select {
		case <-rl.ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
		rl.ticker.Stop()
	})
}
