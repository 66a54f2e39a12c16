package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client address, preferring the first
// entry of X-Forwarded-For, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// MaskDestination hides all but the tail of a phone number or address in
// log output.
func MaskDestination(destination string, visibleTail int) string {
	if destination == "" {
		return ""
	}
	runes := []rune(destination)
	if len(runes) <= visibleTail {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visibleTail) + string(runes[len(runes)-visibleTail:])
}
