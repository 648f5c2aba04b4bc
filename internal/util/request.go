package util

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller's address, trusting X-Forwarded-For and
// X-Real-IP set by a fronting proxy before falling back to RemoteAddr.
// Only use it where a spoofed value is harmless, such as request logs.
func GetClientIP(r *http.Request) string {
	return ClientIP(r, true)
}

// ClientIP returns the caller's address. Forwarding headers are only honoured
// when trustProxy is set; otherwise the connection's RemoteAddr is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
