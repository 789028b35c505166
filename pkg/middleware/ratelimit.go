package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterStore hands out one token bucket per key.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.every), s.burst)
		s.limiters[key] = l
	}
	return l
}

// RateLimit returns middleware that allows burst requests per key and then
// one request per every interval. key derives the bucket from the request,
// e.g. a route parameter. A zero interval disables the limit. Requests over
// the limit get 429 Too Many Requests.
func RateLimit(every time.Duration, burst int, key func(*http.Request) string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if every <= 0 {
			return next
		}
		store := &limiterStore{
			limiters: make(map[string]*rate.Limiter),
			every:    every,
			burst:    max(burst, 1),
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !store.get(k).Allow() {
				logger.Warn("rate limit exceeded",
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", retryAfter(every))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(every time.Duration) string {
	secs := int(every.Round(time.Second) / time.Second)
	return strconv.Itoa(max(secs, 1))
}
