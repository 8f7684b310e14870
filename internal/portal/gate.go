// Package portal implements the access gate shared by the client and subcontractor portals:
// route classification, token verification and refresh, per-principal rate limiting, identity
// propagation, security headers and activity logging.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sitegate.io/internal/audit"
	"sitegate.io/internal/auth"
	"sitegate.io/internal/httpx"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/projects"
	"sitegate.io/internal/ratelimit"
)

// ActivityLogger is the part of audit.Logger the gate needs.
type ActivityLogger interface {
	Log(ctx context.Context, e audit.Entry)
}

// Accounts looks up portal logins by email within an audience.
type Accounts interface {
	FindAccount(ctx context.Context, audience, email string) (auth.Account, error)
}

// Gate guards one portal.
type Gate struct {
	cfg      Config
	codec    *auth.Codec
	policy   auth.SessionPolicy
	limiter  ratelimit.Limiter
	activity ActivityLogger
	accounts Accounts
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Gate)

// WithAccounts enables Login.
func WithAccounts(a Accounts) Option {
	return func(g *Gate) { g.accounts = a }
}

// WithClock overrides time.Now for refresh decisions and Retry-After.
func WithClock(fn func() time.Time) Option {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// New builds a gate. codec must be configured for cfg's audience.
func New(cfg Config, codec *auth.Codec, limiter ratelimit.Limiter, activity ActivityLogger, opts ...Option) *Gate {
	g := &Gate{
		cfg:      cfg,
		codec:    codec,
		policy:   cfg.SessionPolicy(),
		limiter:  limiter,
		activity: activity,
		now:      time.Now,
		log:      obs.Named("gate").With(obs.Portal(cfg.Name)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the portal configuration the gate enforces.
func (g *Gate) Config() Config { return g.cfg }

// Middleware runs the gate steps in order. Public routes skip verification, refresh and rate
// limiting; every response gets the security headers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A client must never be able to assert an identity.
		r.Header.Del(g.cfg.AuthHeader())
		SecurityHeaders(w)

		path := r.URL.Path
		if g.cfg.IsPublic(path) {
			obs.ObserveGate(g.cfg.Name, "public")
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if g.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
			defer cancel()
		}

		sess, ok := g.verify(ctx, w, r)
		if !ok {
			return
		}

		if g.policy.ShouldRefresh(sess, g.now()) {
			if sess, ok = g.refresh(ctx, w, r, sess); !ok {
				return
			}
		}

		if g.cfg.IsAPI(path) && g.limiter != nil {
			res := g.limiter.CheckAndConsume(ctx, ratelimit.PrincipalKey(g.cfg.Name, sess.SubjectID), g.cfg.API.Policy())
			if !res.Allowed {
				g.rateLimited(ctx, w, r, sess, res)
				return
			}
		}

		if b, err := json.Marshal(sess); err == nil {
			r.Header.Set(g.cfg.AuthHeader(), string(b))
		}
		ctx = auth.ContextWithSession(ctx, sess)

		if !g.cfg.excludedFromLog(path) {
			typ := audit.ActivityPageVisit
			if g.cfg.IsAPI(path) {
				typ = audit.ActivityAPIRequest
			}
			g.record(ctx, r, audit.Entry{
				Portal:      g.codec.Audience(),
				PrincipalID: sess.SubjectID,
				Type:        typ,
				Action:      r.Method + " " + path,
			})
		}

		obs.ObserveGate(g.cfg.Name, "allowed")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify extracts and checks the portal cookie. On failure it writes the response.
func (g *Gate) verify(ctx context.Context, w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	c, err := r.Cookie(g.cfg.CookieName)
	if err != nil || c.Value == "" {
		g.deny(w, r, "missing")
		return auth.Session{}, false
	}
	sess, err := g.codec.Verify(ctx, c.Value)
	switch {
	case err == nil:
		return sess, true
	case ctx.Err() != nil:
		obs.ObserveGate(g.cfg.Name, "timeout")
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	case errors.Is(err, auth.ErrRevocationCheck):
		obs.ObserveGate(g.cfg.Name, "unavailable")
		g.log.Error("session revocation check failed", obs.RequestID(obs.RequestIDFromContext(ctx)), zap.Error(err))
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		g.clearCookie(w)
		g.deny(w, r, "invalid")
	}
	return auth.Session{}, false
}

// deny sends API callers a 401 and page visitors to the login page.
func (g *Gate) deny(w http.ResponseWriter, r *http.Request, outcome string) {
	obs.ObserveGate(g.cfg.Name, outcome)
	if g.cfg.IsAPI(r.URL.Path) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	http.Redirect(w, r, g.cfg.LoginURL(r.URL.RequestURI()), http.StatusFound)
}

// refresh re-issues a session close to expiry from the current account record, so a disabled
// account or a changed access level takes effect at the next refresh. An account that is gone,
// disabled or no longer matches the session is revoked and denied. A lookup or signing failure
// keeps the current, still valid token without extending it.
func (g *Gate) refresh(ctx context.Context, w http.ResponseWriter, r *http.Request, sess auth.Session) (auth.Session, bool) {
	if g.accounts != nil {
		acc, err := g.accounts.FindAccount(ctx, g.codec.Audience(), sess.Email)
		switch {
		case errors.Is(err, projects.ErrNotFound):
			g.endSession(ctx, w, r, sess, "account_missing")
			return auth.Session{}, false
		case err != nil:
			g.log.Warn("session refresh lookup failed", obs.PrincipalID(sess.SubjectID), zap.Error(err))
			return sess, true
		case acc.ID != sess.SubjectID || acc.Role != sess.Role:
			g.endSession(ctx, w, r, sess, "account_mismatch")
			return auth.Session{}, false
		case !acc.PortalEnabled:
			g.endSession(ctx, w, r, sess, "portal_disabled")
			return auth.Session{}, false
		}
		sess.Identity = acc.Identity()
	}

	token, next, err := g.codec.Reissue(sess)
	if err != nil {
		g.log.Warn("session refresh failed", obs.PrincipalID(sess.SubjectID), zap.Error(err))
		return sess, true
	}
	g.setCookie(w, token, next)
	obs.ObserveRefresh(g.cfg.Name)
	g.record(ctx, r, audit.Entry{
		Portal:      g.codec.Audience(),
		PrincipalID: sess.SubjectID,
		Type:        audit.ActivitySessionRefresh,
		Action:      "refresh",
		Metadata:    map[string]any{"expires_at": next.ExpiresAt.UTC().Format(time.RFC3339)},
	})
	return next, true
}

// endSession revokes a session whose account no longer backs it and denies the request.
func (g *Gate) endSession(ctx context.Context, w http.ResponseWriter, r *http.Request, sess auth.Session, reason string) {
	if err := g.codec.Revoke(ctx, sess); err != nil {
		g.log.Warn("session revoke failed", obs.SessionID(sess.SessionID), zap.Error(err))
	}
	e := audit.Unauthorized(g.codec.Audience(), sess.SubjectID, "refresh", "session", sess.SessionID)
	e.Metadata["reason"] = reason
	g.record(ctx, r, e)
	g.clearCookie(w)
	g.deny(w, r, "revoked")
}

func (g *Gate) rateLimited(ctx context.Context, w http.ResponseWriter, r *http.Request, sess auth.Session, res ratelimit.Result) {
	obs.ObserveGate(g.cfg.Name, "rate_limited")
	typ := audit.ActivityRateLimited
	if res.Escalated {
		typ = audit.ActivitySuspiciousBlock
		obs.ObserveBlock("api")
	}
	g.record(ctx, r, audit.Entry{
		Portal:      g.codec.Audience(),
		PrincipalID: sess.SubjectID,
		Type:        typ,
		Action:      r.Method + " " + r.URL.Path,
		Metadata:    map[string]any{"count": res.Count, "limit": res.Limit},
	})
	writeTooMany(w, r, res.RetryAfter(g.now()))
}

func writeTooMany(w http.ResponseWriter, r *http.Request, retry time.Duration) {
	secs := int(retry.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	httpx.WriteError(w, r, http.StatusTooManyRequests, "too many requests")
}

func (g *Gate) record(ctx context.Context, r *http.Request, e audit.Entry) {
	if g.activity == nil {
		return
	}
	e.IP = ratelimit.ClientIP(r, g.cfg.TrustProxy)
	e.UserAgent = r.UserAgent()
	g.activity.Log(ctx, e)
}

func (g *Gate) setCookie(w http.ResponseWriter, token string, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     g.cfg.PagePrefix,
		Expires:  sess.ExpiresAt,
		MaxAge:   int(sess.ExpiresAt.Sub(g.now()) / time.Second),
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (g *Gate) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     g.cfg.PagePrefix,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cfg.CookieSecure(),
		SameSite: http.SameSiteStrictMode,
	})
}

// SessionFromRequest decodes the identity header the gate set. Handlers mounted behind the gate
// may use it or auth.SessionFromContext interchangeably.
func (g *Gate) SessionFromRequest(r *http.Request) (auth.Session, bool) {
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		return s, true
	}
	raw := r.Header.Get(g.cfg.AuthHeader())
	if raw == "" {
		return auth.Session{}, false
	}
	var s auth.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return auth.Session{}, false
	}
	return s, s.SubjectID != "" && s.Audience == g.codec.Audience()
}
