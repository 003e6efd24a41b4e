package ratelimit

import (
	"net/http"
	"strings"
)

// ClientIP derives the rate limiting key from proxy headers.
// Precedence: first X-Forwarded-For entry, then X-Real-IP, then
// CF-Connecting-IP. Requests with none of these share the "unknown"
// bucket rather than bypassing the limiter.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	return "unknown"
}
