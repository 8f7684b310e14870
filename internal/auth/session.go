package auth

import (
	"slices"
	"time"
)

const (
	DefaultLifetime         = 8 * time.Hour
	DefaultRefreshThreshold = time.Hour
)

// Identity is what a token says about its subject.
type Identity struct {
	SubjectID   string      `json:"sub"`
	Email       string      `json:"email"`
	Name        string      `json:"name,omitempty"`
	Role        Role        `json:"role"`
	AccessLevel AccessLevel `json:"access_level,omitempty"`
	// CompanyID is set for client principals.
	CompanyID string `json:"company_id,omitempty"`
	// ProjectIDs is set for subcontractor principals.
	ProjectIDs []string `json:"project_ids,omitempty"`
}

// Equal compares identities field by field.
func (id Identity) Equal(other Identity) bool {
	return id.SubjectID == other.SubjectID &&
		id.Email == other.Email &&
		id.Name == other.Name &&
		id.Role == other.Role &&
		id.AccessLevel == other.AccessLevel &&
		id.CompanyID == other.CompanyID &&
		slices.Equal(id.ProjectIDs, other.ProjectIDs)
}

// Session is the principal attached to a request after successful verification. It is never
// stored server side.
type Session struct {
	Identity
	SessionID string    `json:"sid"`
	Audience  string    `json:"aud"`
	Issuer    string    `json:"iss"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// SessionPolicy holds the per-portal lifetime and refresh threshold.
type SessionPolicy struct {
	Lifetime         time.Duration
	RefreshThreshold time.Duration
}

// DefaultSessionPolicy returns the 8h lifetime with a 1h refresh threshold.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{Lifetime: DefaultLifetime, RefreshThreshold: DefaultRefreshThreshold}
}

// ShouldRefresh reports whether a live session is within the refresh threshold of its expiry.
// Expired sessions are never refreshed.
func (p SessionPolicy) ShouldRefresh(s Session, now time.Time) bool {
	left := s.ExpiresAt.Sub(now)
	return left > 0 && left < p.RefreshThreshold
}

// Expired reports whether the session has passed its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
