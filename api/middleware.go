package api

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// visitor tracks a per-IP token bucket and when the IP was last seen.
type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// limiterFor returns the token bucket for an IP, creating one on first
// sight. The bucket pointer is captured under the lock so the cleanup
// goroutine cannot race the Allow call.
func (a *API) limiterFor(ip string) *rate.Limiter {
	a.visitorsMu.Lock()
	defer a.visitorsMu.Unlock()

	v, ok := a.visitors[ip]
	if !ok {
		v = &visitor{
			bucket: rate.NewLimiter(
				rate.Limit(a.config.API.RateLimit.RequestsPerSecond),
				a.config.API.RateLimit.Burst,
			),
		}
		a.visitors[ip] = v
	}
	v.seen = time.Now()
	return v.bucket
}

func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiterFor(clientIP(r)).Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanupVisitors drops buckets for IPs idle longer than an hour so the
// map stays bounded.
func (a *API) cleanupVisitors() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.visitorsMu.Lock()
			for ip, v := range a.visitors {
				if time.Since(v.seen) > 1*time.Hour {
					delete(a.visitors, ip)
				}
			}
			a.visitorsMu.Unlock()
		case <-a.stopCh:
			return
		}
	}
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && a.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) originAllowed(origin string) bool {
	for _, allowed := range a.config.API.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
