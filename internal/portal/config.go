package portal

import (
	"net/http"
	"net/url"
	"strings"

	"sitegate.io/internal/config"
)

// Config is the gate's view of one portal.
type Config struct {
	config.PortalConfig
	// TrustProxy makes client IP derivation honour X-Forwarded-For.
	TrustProxy bool
}

// IsPublic reports whether path skips verification, refresh and rate limiting.
func (c Config) IsPublic(path string) bool {
	for _, p := range c.PublicRoutes {
		if path == p {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsAPI reports whether path is under the portal's API prefix.
func (c Config) IsAPI(path string) bool {
	return hasPathPrefix(path, c.APIPrefix)
}

func (c Config) excludedFromLog(path string) bool {
	for _, p := range c.ExcludeFromLog {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AuthHeader is the request header carrying the verified identity downstream.
func (c Config) AuthHeader() string {
	return http.CanonicalHeaderKey("x-" + c.Name + "-auth")
}

// LoginURL returns the login page with the original path as the redirect target.
func (c Config) LoginURL(original string) string {
	if original == "" || !strings.HasPrefix(original, "/") || strings.HasPrefix(original, "//") {
		return c.LoginPath
	}
	return c.LoginPath + "?redirect=" + url.QueryEscape(original)
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
