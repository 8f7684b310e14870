package portal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitegate.io/internal/audit"
	"sitegate.io/internal/auth"
	"sitegate.io/internal/httpx"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/projects"
	"sitegate.io/internal/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User        auth.Identity `json:"user"`
	SessionID   string        `json:"session_id"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Permissions []auth.Action `json:"permissions"`
	Scope       string        `json:"scope"`
	CanViewCost bool          `json:"can_view_costs"`
}

func newSessionResponse(s auth.Session) sessionResponse {
	resp := sessionResponse{
		User:        s.Identity,
		SessionID:   s.SessionID,
		ExpiresAt:   s.ExpiresAt,
		Permissions: []auth.Action{},
	}
	if perms, err := auth.Resolve(s.Role, s.AccessLevel); err == nil {
		resp.Permissions = perms.Actions()
		resp.Scope = string(perms.Scope)
		resp.CanViewCost = perms.CanViewCosts
	}
	return resp
}

// Login checks credentials and sets the portal cookie. Attempts are limited per anonymous
// client fingerprint, with an escalated block for sustained guessing.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if g.limiter != nil {
		key := "login:" + g.cfg.Name + ":" + ratelimit.AnonymousKey(r, g.cfg.TrustProxy)
		res := g.limiter.CheckAndConsume(ctx, key, g.cfg.Login.Policy())
		if res.Escalated {
			obs.ObserveBlock("login")
			g.record(ctx, r, audit.Entry{
				Portal: g.codec.Audience(),
				Type:   audit.ActivitySuspiciousBlock,
				Action: "login",
				Metadata: map[string]any{
					"count":       res.Count,
					"block_until": res.BlockUntil.UTC().Format(time.RFC3339),
				},
			})
		}
		if !res.Allowed {
			obs.ObserveGate(g.cfg.Name, "login_rate_limited")
			writeTooMany(w, r, res.RetryAfter(g.now()))
			return
		}
	}

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		var verr *httpx.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteValidation(w, r, verr)
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	verr := &httpx.ValidationError{}
	if email == "" {
		verr.Add("email", "is required")
	}
	if req.Password == "" {
		verr.Add("password", "is required")
	}
	if verr.OrNil() != nil {
		httpx.WriteValidation(w, r, verr)
		return
	}
	if g.accounts == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "login is not available")
		return
	}

	acc, err := g.accounts.FindAccount(ctx, g.codec.Audience(), email)
	switch {
	case errors.Is(err, projects.ErrNotFound):
		_ = auth.VerifyPassword("", req.Password)
		g.loginFailed(ctx, r, "", email, "unknown_account")
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		httpx.WriteInternalError(w, r, err)
		return
	}
	if err := auth.VerifyPassword(acc.PasswordHash, req.Password); err != nil {
		g.loginFailed(ctx, r, acc.ID, email, "bad_password")
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !acc.PortalEnabled {
		g.loginFailed(ctx, r, acc.ID, email, "portal_disabled")
		httpx.WriteError(w, r, http.StatusForbidden, "portal access is disabled for this account")
		return
	}

	token, sess, err := g.codec.Issue(acc.Identity())
	if err != nil {
		httpx.WriteInternalError(w, r, err)
		return
	}
	g.setCookie(w, token, sess)
	g.record(ctx, r, audit.Entry{
		Portal:      g.codec.Audience(),
		PrincipalID: sess.SubjectID,
		Type:        audit.ActivityLogin,
		Action:      "login",
		Metadata:    map[string]any{"session_id": sess.SessionID},
	})
	obs.From(ctx).Info("portal login", obs.Portal(g.cfg.Name), obs.PrincipalID(sess.SubjectID), obs.SessionID(sess.SessionID))
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (g *Gate) loginFailed(ctx context.Context, r *http.Request, principalID, email, reason string) {
	g.record(ctx, r, audit.Entry{
		Portal:      g.codec.Audience(),
		PrincipalID: principalID,
		Type:        audit.ActivityLoginFailed,
		Action:      "login",
		Metadata:    map[string]any{"email": email, "reason": reason},
	})
}

// Logout revokes the current session when the cookie still verifies and always clears the
// cookie. Repeated calls succeed.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c, err := r.Cookie(g.cfg.CookieName); err == nil && c.Value != "" {
		if sess, err := g.codec.Verify(ctx, c.Value); err == nil {
			if err := g.codec.Revoke(ctx, sess); err != nil {
				g.log.Warn("session revoke failed", obs.SessionID(sess.SessionID), zap.Error(err))
			}
			g.record(ctx, r, audit.Entry{
				Portal:      g.codec.Audience(),
				PrincipalID: sess.SubjectID,
				Type:        audit.ActivityLogout,
				Action:      "logout",
				Metadata:    map[string]any{"session_id": sess.SessionID},
			})
		}
	}
	g.clearCookie(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// Session returns the verified principal of the request.
func (g *Gate) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.SessionFromRequest(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}
