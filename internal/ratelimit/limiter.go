// Package ratelimit implements fixed-window request counting with an escalating block for
// identifiers that cross a suspicious volume.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy configures one limiter use site. SuspiciousThreshold and BlockDuration are optional;
// both must be positive for escalation to apply.
type Policy struct {
	Max                 int
	Window              time.Duration
	BlockDuration       time.Duration
	SuspiciousThreshold int
}

func (p Policy) normalized() Policy {
	if p.Max <= 0 {
		p.Max = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

func (p Policy) escalates() bool {
	return p.SuspiciousThreshold > 0 && p.BlockDuration > 0
}

// Result is the outcome of one CheckAndConsume call.
type Result struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Blocked is set while an escalated block is active.
	Blocked    bool
	BlockUntil time.Time
	// Escalated is set only on the call that placed the block.
	Escalated bool
}

// RetryAfter returns how long the caller should wait before the next attempt can succeed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	until := r.ResetAt
	if r.Blocked && r.BlockUntil.After(until) {
		until = r.BlockUntil
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter counts a request against key and reports whether it may proceed.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string, p Policy) Result
}

// Memory keeps counters in process. Counts are per instance: behind a load balancer the
// effective limit is multiplied by the number of instances. Use Redis for a shared limit.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]entry
}

type entry struct {
	count      int
	resetAt    time.Time
	blockUntil time.Time
}

// Option configures a Memory limiter.
type Option func(*Memory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{now: time.Now, items: make(map[string]entry)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) CheckAndConsume(_ context.Context, key string, p Policy) Result {
	p = p.normalized()
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup(now)

	curr, ok := m.items[key]
	if ok && now.Before(curr.blockUntil) {
		return Result{
			Count:      curr.count,
			Limit:      p.Max,
			ResetAt:    curr.resetAt,
			Blocked:    true,
			BlockUntil: curr.blockUntil,
		}
	}
	if !ok || !now.Before(curr.resetAt) {
		curr = entry{resetAt: now.Add(p.Window)}
	}
	curr.count++

	res := Result{
		Allowed:   curr.count <= p.Max,
		Count:     curr.count,
		Limit:     p.Max,
		Remaining: max(p.Max-curr.count, 0),
		ResetAt:   curr.resetAt,
	}
	if p.escalates() && curr.count >= p.SuspiciousThreshold {
		curr.blockUntil = now.Add(p.BlockDuration)
		res.Allowed = false
		res.Remaining = 0
		res.Blocked = true
		res.BlockUntil = curr.blockUntil
		res.Escalated = true
	}
	m.items[key] = curr
	return res
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// cleanup drops entries whose window and block have both expired.
func (m *Memory) cleanup(now time.Time) {
	for k, v := range m.items {
		if !now.Before(v.resetAt) && !now.Before(v.blockUntil) {
			delete(m.items, k)
		}
	}
}
