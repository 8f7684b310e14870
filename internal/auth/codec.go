package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HS256 secret a codec accepts.
const MinSecretLength = 32

const clockSkew = 5 * time.Second

// Audience scopes tokens to one portal. Two portals must never share a name, an issuer or a
// secret.
type Audience struct {
	Name     string
	Issuer   string
	Secret   []byte
	Lifetime time.Duration
}

type tokenClaims struct {
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role"`
	AccessLevel string   `json:"access_level,omitempty"`
	CompanyID   string   `json:"company_id,omitempty"`
	ProjectIDs  []string `json:"project_ids,omitempty"`
	SessionID   string   `json:"sid"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 session tokens for a single audience.
type Codec struct {
	aud         Audience
	now         func() time.Time
	revocations Revocations
	parser      *jwt.Parser
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithRevocations makes Verify consult the revocation set.
func WithRevocations(r Revocations) CodecOption {
	return func(c *Codec) {
		c.revocations = r
	}
}

// NewCodec validates the audience and returns a codec bound to it.
func NewCodec(aud Audience, opts ...CodecOption) (*Codec, error) {
	aud.Name = strings.TrimSpace(aud.Name)
	aud.Issuer = strings.TrimSpace(aud.Issuer)
	if aud.Name == "" || aud.Issuer == "" {
		return nil, errors.New("auth: audience name and issuer are required")
	}
	if len(aud.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: %s needs at least %d bytes", ErrWeakSecret, aud.Name, MinSecretLength)
	}
	if aud.Lifetime <= 0 {
		aud.Lifetime = DefaultLifetime
	}
	aud.Secret = slices.Clone(aud.Secret)

	c := &Codec{aud: aud, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(aud.Name),
		jwt.WithIssuer(aud.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Audience returns the audience name the codec signs for.
func (c *Codec) Audience() string { return c.aud.Name }

// Lifetime returns the absolute session lifetime.
func (c *Codec) Lifetime() time.Duration { return c.aud.Lifetime }

// Issue signs a token for a new session.
func (c *Codec) Issue(id Identity) (string, Session, error) {
	return c.sign(id, uuid.NewString())
}

// Reissue signs a replacement token for an existing session, keeping its id and extending its
// expiry from now.
func (c *Codec) Reissue(s Session) (string, Session, error) {
	if strings.TrimSpace(s.SessionID) == "" {
		return "", Session{}, fmt.Errorf("%w: session id missing", ErrIncompleteIdentity)
	}
	return c.sign(s.Identity, s.SessionID)
}

func (c *Codec) sign(id Identity, sid string) (string, Session, error) {
	if err := validateIdentity(id); err != nil {
		return "", Session{}, err
	}
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.aud.Lifetime)
	claims := tokenClaims{
		Email:       id.Email,
		Name:        id.Name,
		Role:        string(id.Role),
		AccessLevel: string(id.AccessLevel),
		CompanyID:   id.CompanyID,
		ProjectIDs:  slices.Clone(id.ProjectIDs),
		SessionID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.aud.Issuer,
			Subject:   id.SubjectID,
			Audience:  jwt.ClaimStrings{c.aud.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.aud.Secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Session{
		Identity:  claims.identity(),
		SessionID: sid,
		Audience:  c.aud.Name,
		Issuer:    c.aud.Issuer,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify checks signature, audience, issuer, required claims, expiry and revocation. Every
// token problem is reported as ErrInvalidToken. A revocation store failure is reported as
// ErrRevocationCheck and must be treated as a failure by the caller.
func (c *Codec) Verify(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	var claims tokenClaims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.aud.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	if err := claims.validate(); err != nil {
		return Session{}, ErrInvalidToken
	}
	s := Session{
		Identity:  claims.identity(),
		SessionID: claims.SessionID,
		Audience:  c.aud.Name,
		Issuer:    claims.Issuer,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if s.Expired(c.now()) {
		return Session{}, ErrInvalidToken
	}
	if c.revocations != nil {
		revoked, err := c.revocations.IsRevoked(ctx, s.SessionID)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %w", ErrRevocationCheck, err)
		}
		if revoked {
			return Session{}, ErrInvalidToken
		}
	}
	return s, nil
}

// Revoke adds the session id to the revocation set. Reissue keeps the id, so a sibling token
// may expire later than s; the entry lasts until the latest expiry any token of the session can
// carry: now plus the lifetime plus clock skew. Without a revocation set it is a no-op.
func (c *Codec) Revoke(ctx context.Context, s Session) error {
	if c.revocations == nil || strings.TrimSpace(s.SessionID) == "" {
		return nil
	}
	until := c.now().Add(c.aud.Lifetime + clockSkew)
	if s.ExpiresAt.After(until) {
		until = s.ExpiresAt
	}
	return c.revocations.Revoke(ctx, s.SessionID, until)
}

func (tc *tokenClaims) identity() Identity {
	return Identity{
		SubjectID:   tc.Subject,
		Email:       tc.Email,
		Name:        tc.Name,
		Role:        Role(tc.Role),
		AccessLevel: AccessLevel(tc.AccessLevel),
		CompanyID:   tc.CompanyID,
		ProjectIDs:  slices.Clone(tc.ProjectIDs),
	}
}

func (tc *tokenClaims) validate() error {
	if strings.TrimSpace(tc.SessionID) == "" {
		return errors.New("sid missing")
	}
	if tc.IssuedAt == nil || tc.ExpiresAt == nil {
		return errors.New("timestamps missing")
	}
	if tc.ExpiresAt.Time.Before(tc.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return validateIdentity(tc.identity())
}

func validateIdentity(id Identity) error {
	if strings.TrimSpace(id.SubjectID) == "" {
		return fmt.Errorf("%w: subject", ErrIncompleteIdentity)
	}
	if strings.TrimSpace(id.Email) == "" {
		return fmt.Errorf("%w: email", ErrIncompleteIdentity)
	}
	if r, err := ParseRole(string(id.Role)); err != nil || r != id.Role {
		return fmt.Errorf("%w: %q", ErrUnknownRole, id.Role)
	}
	if !ValidAccessLevel(id.Role, id.AccessLevel) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidAccessLevel, id.AccessLevel, id.Role)
	}
	if id.Role == RoleClient && strings.TrimSpace(id.CompanyID) == "" {
		return fmt.Errorf("%w: company", ErrIncompleteIdentity)
	}
	return nil
}
