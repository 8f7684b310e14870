package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address. X-Forwarded-For is only honoured when the service runs
// behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AnonymousKey identifies unauthenticated traffic by IP and a hash of the User-Agent, so two
// browsers behind one address are counted separately.
func AnonymousKey(r *http.Request, trustProxy bool) string {
	ua := sha256.Sum256([]byte(r.UserAgent()))
	sum := sha256.Sum256([]byte(ClientIP(r, trustProxy) + "|" + hex.EncodeToString(ua[:])))
	return "anon:" + hex.EncodeToString(sum[:16])
}

// PrincipalKey identifies authenticated traffic by the principal's stable id within a portal.
func PrincipalKey(portal, subjectID string) string {
	return "principal:" + portal + ":" + subjectID
}
