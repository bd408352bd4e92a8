package ratelimit

import (
	"net"
	"strings"
)

// ClientKey derives the throttle key: the user id when authenticated, otherwise the first
// X-Forwarded-For entry, X-Real-IP, then the direct peer address.
func ClientKey(userID, forwardedFor, realIP, remoteAddr string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return "ip:" + ip
	}
	if addr := strings.TrimSpace(remoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if addr != "" {
			return "ip:" + addr
		}
	}
	return "ip:unknown"
}
