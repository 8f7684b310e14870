package auth

import (
	"testing"
	"time"
)

func TestShouldRefresh(t *testing.T) {
	policy := DefaultSessionPolicy()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		left time.Duration
		want bool
	}{
		{"fresh", 7 * time.Hour, false},
		{"at threshold", time.Hour, false},
		{"inside threshold", 59 * time.Minute, true},
		{"last second", time.Second, true},
		{"expired", 0, false},
		{"long expired", -time.Hour, false},
	}
	for _, tc := range cases {
		s := Session{ExpiresAt: now.Add(tc.left)}
		if got := policy.ShouldRefresh(s, now); got != tc.want {
			t.Fatalf("%s: ShouldRefresh = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	if (Session{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatal("live session reported expired")
	}
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Fatal("session at its expiry must be expired")
	}
}
