package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func clientAudience() Audience {
	return Audience{
		Name:   "client-portal",
		Issuer: "sitegate-client",
		Secret: []byte("client-secret-0123456789abcdef0123456789"),
	}
}

func subcontractorAudience() Audience {
	return Audience{
		Name:   "subcontractor-portal",
		Issuer: "sitegate-subcontractor",
		Secret: []byte("subcontractor-secret-0123456789abcdef012"),
	}
}

func clientIdentity() Identity {
	return Identity{
		SubjectID:   "c-user-1",
		Email:       "owner@acme.test",
		Name:        "Ada Owner",
		Role:        RoleClient,
		AccessLevel: AccessApprover,
		CompanyID:   "company-acme",
	}
}

func mustCodec(t *testing.T, aud Audience, opts ...CodecOption) *Codec {
	t.Helper()
	c, err := NewCodec(aud, opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	clock := newClock()
	codec := mustCodec(t, clientAudience(), WithClock(clock.Now))

	identities := []Identity{
		clientIdentity(),
		{
			SubjectID:   "s-user-7",
			Email:       "crew@rebar.test",
			Role:        RoleSubcontractor,
			AccessLevel: AccessStandard,
			ProjectIDs:  []string{"p-1", "p-9"},
		},
		{SubjectID: "staff-1", Email: "pm@sitegate.test", Role: RoleProjectManager},
	}
	for _, id := range identities {
		token, issued, err := codec.Issue(id)
		if err != nil {
			t.Fatalf("Issue(%s): %v", id.Role, err)
		}
		got, err := codec.Verify(context.Background(), token)
		if err != nil {
			t.Fatalf("Verify(%s): %v", id.Role, err)
		}
		if !got.Identity.Equal(id) {
			t.Fatalf("identity mismatch: got %+v want %+v", got.Identity, id)
		}
		if got.SessionID == "" || got.SessionID != issued.SessionID {
			t.Fatalf("session id mismatch: %q vs %q", got.SessionID, issued.SessionID)
		}
		now := clock.Now()
		if got.IssuedAt.After(now) || now.After(got.ExpiresAt) {
			t.Fatalf("expected iat <= now <= exp, got %s / %s / %s", got.IssuedAt, now, got.ExpiresAt)
		}
		if got.ExpiresAt.Sub(got.IssuedAt) != DefaultLifetime {
			t.Fatalf("unexpected lifetime %s", got.ExpiresAt.Sub(got.IssuedAt))
		}
		if got.Audience != "client-portal" || got.Issuer != "sitegate-client" {
			t.Fatalf("unexpected audience/issuer %q/%q", got.Audience, got.Issuer)
		}
	}
}

func TestCodecRejectsOtherPortal(t *testing.T) {
	client := mustCodec(t, clientAudience())
	sub := mustCodec(t, subcontractorAudience())

	token, _, err := client.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := sub.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// Same secret, different audience: the audience check alone must reject it.
	shared := subcontractorAudience()
	shared.Secret = clientAudience().Secret
	sameKey := mustCodec(t, shared)
	if _, err := sameKey.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for shared secret, got %v", err)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	clock := newClock()
	codec := mustCodec(t, clientAudience(), WithClock(clock.Now))
	token, _, err := codec.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(DefaultLifetime + time.Second)
	if _, err := codec.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodecRejectsTamperedAndUnsigned(t *testing.T) {
	codec := mustCodec(t, clientAudience())
	token, _, err := codec.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	cases := map[string]string{
		"empty":    "",
		"garbage":  "not-a-token",
		"tampered": strings.Join(parts, "."),
	}

	claims := jwt.MapClaims{
		"sub": "c-user-1", "email": "owner@acme.test", "role": "client",
		"access_level": "approver", "company_id": "company-acme", "sid": "s-1",
		"aud": "client-portal", "iss": "sitegate-client",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	cases["alg none"] = none

	for name, tok := range cases {
		if _, err := codec.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestCodecRejectsMissingClaims(t *testing.T) {
	aud := clientAudience()
	codec := mustCodec(t, aud)
	claims := jwt.MapClaims{
		"sub": "c-user-1", "email": "owner@acme.test", "role": "client",
		"access_level": "approver", "sid": "s-1",
		"aud": aud.Name, "iss": aud.Issuer,
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(aud.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("client token without company must be rejected, got %v", err)
	}
}

func TestNewCodecRejectsWeakSecret(t *testing.T) {
	aud := clientAudience()
	aud.Secret = []byte("short")
	if _, err := NewCodec(aud); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestIssueRejectsIncompleteIdentity(t *testing.T) {
	codec := mustCodec(t, clientAudience())
	id := clientIdentity()
	id.CompanyID = ""
	if _, _, err := codec.Issue(id); !errors.Is(err, ErrIncompleteIdentity) {
		t.Fatalf("expected ErrIncompleteIdentity, got %v", err)
	}
	id = clientIdentity()
	id.AccessLevel = AccessStandard
	if _, _, err := codec.Issue(id); !errors.Is(err, ErrInvalidAccessLevel) {
		t.Fatalf("expected ErrInvalidAccessLevel, got %v", err)
	}
}

func TestReissueKeepsSessionAndExtendsExpiry(t *testing.T) {
	clock := newClock()
	codec := mustCodec(t, clientAudience(), WithClock(clock.Now))
	_, first, err := codec.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(7*time.Hour + 30*time.Minute)
	token, second, err := codec.Reissue(first)
	if err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("reissue changed session id")
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expected extended expiry, got %s <= %s", second.ExpiresAt, first.ExpiresAt)
	}
	if _, err := codec.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify reissued: %v", err)
	}
}

func TestVerifyHonoursRevocation(t *testing.T) {
	revs := NewMemoryRevocations()
	defer revs.Close()
	codec := mustCodec(t, clientAudience(), WithRevocations(revs))

	token, sess, err := codec.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := codec.Revoke(context.Background(), sess); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := codec.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	// Revoking twice is harmless.
	if err := codec.Revoke(context.Background(), sess); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestVerifyFailsClosedOnRevocationError(t *testing.T) {
	codec := mustCodec(t, clientAudience(), WithRevocations(failingRevocations{}))
	token, _, err := codec.Issue(clientIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = codec.Verify(context.Background(), token)
	if !errors.Is(err, ErrRevocationCheck) {
		t.Fatalf("expected ErrRevocationCheck, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}
