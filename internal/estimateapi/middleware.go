package estimateapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/observability"
	"github.com/estimatrack/estimatrack/internal/ratelimit"
)

type ctxKey int

const sessionShopKey ctxKey = iota

// sessionShop returns the shop domain established by a verified proxy
// signature, or "" when the request arrived unsigned.
func sessionShop(ctx context.Context) string {
	shop, _ := ctx.Value(sessionShopKey).(string)
	return shop
}

// RequestID assigns every request a UUID, echoed back in response bodies
// as requestId. A client-supplied X-Request-Id is honored so traces can
// span the proxy hop. Stored under chi's key so middleware.GetReqID works
// downstream.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs the start and end of each request and injects a
// request-scoped logger into the context for handlers to use.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := middleware.GetReqID(r.Context())

			reqLogger := base.With(
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			ctx := logger.WithContext(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			duration := time.Since(start)
			status := ww.Status()

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(ctx, level, "HTTP request completed",
				slog.Int("status", status),
				slog.String("duration", duration.String()),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// Metrics records every finished request into Prometheus and the
// in-process aggregator backing the health endpoint.
func Metrics(agg *observability.Aggregator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			code := strconv.Itoa(status)

			observability.DataPlaneReqTotal.WithLabelValues(r.Method, r.URL.Path, code).Inc()
			observability.DataPlaneReqDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())

			sample := observability.Sample{
				Endpoint: r.URL.Path,
				Method:   r.Method,
				Status:   status,
				Duration: duration,
				Shop:     r.URL.Query().Get("shop"),
			}
			if status >= 400 {
				sample.Error = http.StatusText(status)
			}
			agg.Record(sample)
		})
	}
}

// CORS opens the estimate API to storefront origins. The widget runs on
// arbitrary shop domains, so the allowed origin is the wildcard.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects clients that exceed the sliding window budget with a
// 429 carrying retryAfter in both the body and the Retry-After header.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Allow(ratelimit.ClientIP(r))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			observability.RateLimitRejections.Inc()
			logger.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client_ip", ratelimit.ClientIP(r)),
				slog.Int("retry_after", decision.RetryAfter),
			)

			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:      "Too many requests. Please try again later.",
				RequestID:  middleware.GetReqID(r.Context()),
				Timestamp:  nowStamp(),
				RetryAfter: decision.RetryAfter,
			})
		})
	}
}

// VerifyProxySignature authenticates signed app-proxy requests. The proxy
// appends a signature parameter computed as the hex HMAC-SHA256 of the
// remaining query parameters, sorted by key and concatenated as
// key=value with multi-values joined by commas.
//
// A valid signature establishes the shop parameter as the session shop.
// Unsigned requests pass through without a session; a present but invalid
// signature is rejected.
func VerifyProxySignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.URL.Query().Get("signature")
			if secret == "" || signature == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !validSignature(r, secret, signature) {
				logger.FromContext(r.Context()).Warn("invalid proxy signature",
					slog.String("shop", r.URL.Query().Get("shop")),
				)
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error:     "Invalid signature",
					RequestID: middleware.GetReqID(r.Context()),
					Timestamp: nowStamp(),
				})
				return
			}

			ctx := context.WithValue(r.Context(), sessionShopKey, r.URL.Query().Get("shop"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validSignature recomputes the proxy HMAC and compares in constant time.
func validSignature(r *http.Request, secret, signature string) bool {
	params := r.URL.Query()
	params.Del("signature")

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s", k, strings.Join(params[k], ","))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
