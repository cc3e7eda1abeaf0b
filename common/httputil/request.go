package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address, preferring
// X-Forwarded-For (first hop) and X-Real-IP over RemoteAddr. Ports are
// stripped.
func ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = strings.TrimSpace(strings.Split(xff, ",")[0])
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
