package guard

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+(:\d{1,5})?$`)

// Hosts decides which request host names are trusted.
type Hosts struct {
	// Allowed lists accepted host names (with or without port). Empty
	// accepts any well-formed host.
	Allowed []string
	// Fallback replaces malformed or disallowed hosts.
	Fallback string
}

// SafeHost returns the lower-cased forwarded or direct host when it is
// well formed and allowed, otherwise the fallback.
func (h Hosts) SafeHost(r *http.Request) string {
	raw := r.Header.Get("X-Forwarded-Host")
	if raw == "" {
		raw = r.Host
	}
	raw = strings.ToLower(strings.TrimSpace(strings.Split(raw, ",")[0]))
	if !hostPattern.MatchString(raw) {
		return h.fallback()
	}
	if len(h.Allowed) > 0 {
		name := raw
		if i := strings.IndexByte(raw, ':'); i >= 0 {
			name = raw[:i]
		}
		ok := false
		for _, a := range h.Allowed {
			if a == name || a == raw || (strings.HasPrefix(a, ".") && strings.HasSuffix(name, a)) {
				ok = true
				break
			}
		}
		if !ok {
			return h.fallback()
		}
	}
	return raw
}

func (h Hosts) fallback() string {
	if h.Fallback != "" {
		return strings.ToLower(h.Fallback)
	}
	return "localhost"
}

// IsLocal reports whether the safe host is a loopback name.
func (h Hosts) IsLocal(r *http.Request) bool {
	return IsLocalHost(h.SafeHost(r))
}

// IsLocalHost reports whether host (optionally with port) names the local machine.
func IsLocalHost(host string) bool {
	name := host
	if hn, _, err := net.SplitHostPort(host); err == nil {
		name = hn
	}
	name = strings.Trim(strings.ToLower(name), "[]")
	if name == "localhost" || strings.HasSuffix(name, ".localhost") {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && ip.IsLoopback()
}

// IsSecure reports whether the client reached us over HTTPS, directly or
// through a proxy that set X-Forwarded-Proto.
func IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

// ClientIP extracts the client address, preferring CF-Connecting-IP, then
// the last X-Forwarded-For hop (the one our proxy appended), then
// X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			if ip := strings.TrimSpace(parts[i]); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "0.0.0.0"
		}
		return r.RemoteAddr
	}
	return host
}
