package abuse

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the first X-Forwarded-For address when present, otherwise
// the request's remote host. Proxy trust is enforced upstream.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	return ClientIPFrom(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
}

// ClientIPFrom applies the ClientIP rule to a raw forwarded-for value and a
// transport peer address.
func ClientIPFrom(forwardedFor, peerAddr string) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		if ip := parseIP(strings.TrimSpace(first)); ip != "" {
			return ip
		}
	}
	return parseIP(strings.TrimSpace(peerAddr))
}

func parseIP(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(strings.Trim(addr, "[]")); ip != nil {
		return ip.String()
	}
	return ""
}
