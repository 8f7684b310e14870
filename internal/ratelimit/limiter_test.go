package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestMemoryWindow(t *testing.T) {
	clock := newClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	p := Policy{Max: 5, Window: time.Second}

	prev := p.Max
	for i := 1; i <= 5; i++ {
		res := l.CheckAndConsume(ctx, "id-1", p)
		if !res.Allowed {
			t.Fatalf("call %d rejected: %+v", i, res)
		}
		if res.Remaining >= prev {
			t.Fatalf("call %d: remaining %d not below %d", i, res.Remaining, prev)
		}
		prev = res.Remaining
	}
	sixth := l.CheckAndConsume(ctx, "id-1", p)
	if sixth.Allowed || sixth.Blocked || sixth.Count != 6 {
		t.Fatalf("unexpected sixth result: %+v", sixth)
	}

	other := l.CheckAndConsume(ctx, "id-2", p)
	if !other.Allowed || other.Count != 1 {
		t.Fatalf("identifiers must be independent: %+v", other)
	}

	clock.Advance(time.Second)
	reset := l.CheckAndConsume(ctx, "id-1", p)
	if !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected a fresh window, got %+v", reset)
	}
	if !reset.ResetAt.Equal(clock.Now().Add(time.Second)) {
		t.Fatalf("unexpected reset time %s", reset.ResetAt)
	}
}

func TestMemoryEscalation(t *testing.T) {
	clock := newClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	p := Policy{Max: 20, Window: time.Second, SuspiciousThreshold: 10, BlockDuration: time.Minute}

	for i := 1; i < 10; i++ {
		if res := l.CheckAndConsume(ctx, "bot", p); !res.Allowed {
			t.Fatalf("call %d rejected early: %+v", i, res)
		}
	}
	tenth := l.CheckAndConsume(ctx, "bot", p)
	if tenth.Allowed || !tenth.Blocked || !tenth.Escalated {
		t.Fatalf("tenth call must escalate: %+v", tenth)
	}
	if !tenth.BlockUntil.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("unexpected block until %s", tenth.BlockUntil)
	}

	clock.Advance(time.Millisecond)
	if res := l.CheckAndConsume(ctx, "bot", p); res.Allowed || !res.Blocked || res.Escalated {
		t.Fatalf("eleventh call must stay blocked: %+v", res)
	}

	// The window resets after a second, the block does not.
	clock.Advance(2 * time.Second)
	if res := l.CheckAndConsume(ctx, "bot", p); res.Allowed || !res.Blocked {
		t.Fatalf("block must outlive the window: %+v", res)
	}
	if res := l.CheckAndConsume(ctx, "bot", p); res.RetryAfter(clock.Now()) <= 50*time.Second {
		t.Fatalf("retry-after must follow the block, got %s", res.RetryAfter(clock.Now()))
	}

	clock.Advance(time.Minute)
	res := l.CheckAndConsume(ctx, "bot", p)
	if !res.Allowed || res.Blocked || res.Count != 1 {
		t.Fatalf("expected a clean slate after the block: %+v", res)
	}
}

func TestMemoryGarbageCollects(t *testing.T) {
	clock := newClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	p := Policy{Max: 1, Window: time.Second, SuspiciousThreshold: 2, BlockDuration: time.Hour}

	l.CheckAndConsume(ctx, "a", p)
	l.CheckAndConsume(ctx, "b", p)
	l.CheckAndConsume(ctx, "b", p) // b escalates
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}

	clock.Advance(2 * time.Second)
	l.CheckAndConsume(ctx, "c", p)
	if l.Len() != 2 {
		t.Fatalf("expected a to be purged and b kept while blocked, got %d", l.Len())
	}

	clock.Advance(time.Hour)
	l.CheckAndConsume(ctx, "d", p)
	if l.Len() != 1 {
		t.Fatalf("expected only d after every window and block expired, got %d", l.Len())
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := Result{ResetAt: now.Add(30 * time.Second)}
	if got := r.RetryAfter(now); got != 30*time.Second {
		t.Fatalf("unexpected retry-after %s", got)
	}
	if got := r.RetryAfter(now.Add(time.Minute)); got != 0 {
		t.Fatalf("expected zero after reset, got %s", got)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client)
	ctx := context.Background()
	p := Policy{Max: 2, Window: time.Second}

	first := l.CheckAndConsume(ctx, "actor:u1", p)
	if !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	second := l.CheckAndConsume(ctx, "actor:u1", p)
	if !second.Allowed || second.Count != 2 || second.Remaining != 0 {
		t.Fatalf("unexpected second result: %+v", second)
	}
	third := l.CheckAndConsume(ctx, "actor:u1", p)
	if third.Allowed || third.Blocked {
		t.Fatalf("unexpected third result: %+v", third)
	}
	mr.FastForward(1100 * time.Millisecond)
	if reset := l.CheckAndConsume(ctx, "actor:u1", p); !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v", reset)
	}
	if l.Fallback.Len() != 0 {
		t.Fatal("fallback must stay unused while redis is healthy")
	}
}

func TestRedisLimiterEscalation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client)
	ctx := context.Background()
	p := Policy{Max: 20, Window: time.Second, SuspiciousThreshold: 10, BlockDuration: time.Minute}

	for i := 1; i < 10; i++ {
		if res := l.CheckAndConsume(ctx, "bot", p); !res.Allowed {
			t.Fatalf("call %d rejected early: %+v", i, res)
		}
	}
	if res := l.CheckAndConsume(ctx, "bot", p); !res.Blocked || !res.Escalated {
		t.Fatalf("tenth call must escalate: %+v", res)
	}
	mr.FastForward(2 * time.Second)
	if res := l.CheckAndConsume(ctx, "bot", p); res.Allowed || !res.Blocked || res.Escalated {
		t.Fatalf("block must outlive the window: %+v", res)
	}
	mr.FastForward(time.Minute)
	if res := l.CheckAndConsume(ctx, "bot", p); !res.Allowed || res.Count != 1 {
		t.Fatalf("expected a clean slate after the block: %+v", res)
	}
}

func TestRedisLimiterFallsBack(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client)
	p := Policy{Max: 1, Window: time.Minute}

	if res := l.CheckAndConsume(context.Background(), "k", p); !res.Allowed {
		t.Fatalf("first call must pass through the fallback: %+v", res)
	}
	if res := l.CheckAndConsume(context.Background(), "k", p); res.Allowed {
		t.Fatalf("fallback must still enforce the limit: %+v", res)
	}
}

func TestKeys(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/client-portal/api/projects", nil)
	r1.RemoteAddr = "203.0.113.7:5000"
	r1.Header.Set("User-Agent", "Firefox")
	r1.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	if got := ClientIP(r1, false); got != "203.0.113.7" {
		t.Fatalf("untrusted proxy header used: %s", got)
	}
	if got := ClientIP(r1, true); got != "198.51.100.1" {
		t.Fatalf("expected first forwarded address, got %s", got)
	}

	r2 := r1.Clone(r1.Context())
	r2.Header.Set("User-Agent", "Safari")
	if AnonymousKey(r1, false) == AnonymousKey(r2, false) {
		t.Fatal("different user agents behind one IP must get different keys")
	}
	if AnonymousKey(r1, false) != AnonymousKey(r1.Clone(r1.Context()), false) {
		t.Fatal("anonymous key must be stable")
	}
	if PrincipalKey("client", "u1") == PrincipalKey("subcontractor", "u1") {
		t.Fatal("principal keys must be portal scoped")
	}
}
