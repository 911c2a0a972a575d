package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-ID"

type contextKey int

const requestIDKey contextKey = iota

// requestIDFrom returns the id minted (or accepted) for this request, or ""
// outside the middleware chain.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID accepts an inbound X-Request-ID or mints one, echoes it on the
// response, and stashes it in the request context for the handlers' logs.
func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures the status a handler wrote so the access log can
// report it. Status defaults to 200, matching net/http's implicit header.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// accessLog emits one line per request. Health probes log at debug so a
// tight liveness poll does not drown the log.
func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := zapcore.InfoLevel
		if r.URL.Path == "/health" {
			level = zapcore.DebugLevel
		}
		h.logger.Log(level, "request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", requestIDFrom(r.Context())))
	})
}

// recoverPanics converts a handler panic into a 500 instead of tearing down
// the connection, and logs the stack.
func (h *handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("handler panic",
					zap.Any("panic_reason", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("request_id", requestIDFrom(r.Context())))
				h.writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate gates the route behind the configured bearer key. With no key
// configured every request passes. A header that is absent, malformed, or
// carries another scheme reads as missing; only an exact constant-time match
// on the token is accepted.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.cfg.Server.APIKey
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeError(w, r, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeError(w, r, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// rateLimit enforces the per-caller budget when one is configured. The
// X-RateLimit headers always reflect the caller's bucket so clients can pace
// themselves before hitting a 429.
func (h *handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := callerKey(r)
		limit := h.cfg.Server.RateLimitPerMinute
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))

		if !h.limiter.allow(key) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			h.writeError(w, r, http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: maximum %d requests per minute", limit))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(h.limiter.tokens(key))))
		next.ServeHTTP(w, r)
	})
}

// callerKey identifies a caller for rate limiting: the first X-Forwarded-For
// hop when a proxy fronts the relay, otherwise the connection's remote host.
func callerKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
