package httpapi

import (
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"sitegate.io/internal/httpx"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/ratelimit"
)

type statusWriter struct {
	http.ResponseWriter
	code        int
	bytes       int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.code = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Logging writes one structured entry per request and puts a request-scoped logger in the
// context. Mount it after httpx.RequestID.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := obs.RequestIDFromContext(r.Context())
		l := obs.Logger().With(obs.RequestID(rid), obs.Method(r.Method), obs.Path(r.URL.Path))
		ctx := obs.ToContext(r.Context(), l)

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		lvl := zapcore.InfoLevel
		switch {
		case sw.code >= 500:
			lvl = zapcore.ErrorLevel
		case sw.code >= 400:
			lvl = zapcore.WarnLevel
		}
		if ce := l.Check(lvl, "request completed"); ce != nil {
			ce.Write(
				obs.Status(sw.code),
				obs.Bytes(sw.bytes),
				obs.DurationMs(time.Since(start).Milliseconds()),
				obs.UserAgent(r.UserAgent()),
				zap.String("route", obs.RoutePattern(r)),
			)
		}
	})
}

// CORS allows credentialed requests from the listed origins only.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := slices.Clone(origins)
	const (
		allowedMethods = "GET,POST,PUT,OPTIONS"
		allowedHeaders = "Content-Type,X-Request-ID"
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(allowed, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", allowedMethods)
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				h.Set("Access-Control-Max-Age", "600")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AnonLimiter is a coarse flood guard in front of the portals: one token bucket per anonymous
// client fingerprint. Idle buckets expire from the cache.
type AnonLimiter struct {
	buckets    *gocache.Cache
	limit      rate.Limit
	burst      int
	trustProxy bool
}

// NewAnonLimiter builds a limiter allowing perSecond sustained requests with the given burst.
// A non-positive rate disables it.
func NewAnonLimiter(perSecond float64, burst int, trustProxy bool) *AnonLimiter {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	return &AnonLimiter{
		buckets:    gocache.New(5*time.Minute, time.Minute),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
	}
}

func (l *AnonLimiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(key, lim, gocache.DefaultExpiration); err != nil {
		// lost the race; use the stored bucket
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Middleware rejects requests once the caller's bucket is empty.
func (l *AnonLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := l.bucket(ratelimit.AnonymousKey(r, l.trustProxy))
		res := lim.Reserve()
		if !res.OK() {
			httpx.WriteError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		if d := res.Delay(); d > 0 {
			res.Cancel()
			secs := int(math.Ceil(d.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			httpx.WriteError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
