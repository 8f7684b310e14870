package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sitegate.io/internal/obs"
)

// KEYS[1] window counter, KEYS[2] block marker.
// ARGV[1] window ms, ARGV[2] suspicious threshold, ARGV[3] block ms.
// Returns {count, window ttl ms, block ttl ms, escalated}.
var checkScript = redis.NewScript(`
local blocked = redis.call("PTTL", KEYS[2])
if blocked > 0 then
  local current = tonumber(redis.call("GET", KEYS[1]) or "0")
  return {current, redis.call("PTTL", KEYS[1]), blocked, 0}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
local threshold = tonumber(ARGV[2])
local blockMs = tonumber(ARGV[3])
if threshold > 0 and blockMs > 0 and current >= threshold then
  redis.call("SET", KEYS[2], "1", "PX", blockMs)
  return {current, ttl, blockMs, 1}
end
return {current, ttl, 0, 0}
`)

// Redis shares counters and blocks between instances. When Redis is unreachable it degrades to
// the in-process Fallback so a cache outage does not disable abuse control entirely.
type Redis struct {
	Client   redis.UniversalClient
	Prefix   string
	Timeout  time.Duration
	Fallback *Memory

	now func() time.Time
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		Client:   client,
		Prefix:   "sitegate:rl:",
		Timeout:  250 * time.Millisecond,
		Fallback: NewMemory(),
		now:      time.Now,
	}
}

func (l *Redis) CheckAndConsume(ctx context.Context, key string, p Policy) Result {
	p = p.normalized()
	if l.Client == nil {
		return l.Fallback.CheckAndConsume(ctx, key, p)
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	// Hash tags keep both keys in one cluster slot.
	base := l.Prefix + "{" + key + "}"
	keys := []string{base, base + ":block"}
	raw, err := checkScript.Run(ctx, l.Client, keys,
		p.Window.Milliseconds(), p.SuspiciousThreshold, p.BlockDuration.Milliseconds()).Int64Slice()
	if err != nil || len(raw) < 4 {
		obs.Logger().Warn("rate limit store unavailable, using in-process counters",
			zap.String("key", key), zap.Error(err))
		return l.Fallback.CheckAndConsume(ctx, key, p)
	}

	now := l.now().UTC()
	count, ttlMs, blockMs, escalated := int(raw[0]), raw[1], raw[2], raw[3] == 1
	if ttlMs < 0 {
		ttlMs = p.Window.Milliseconds()
	}
	res := Result{
		Allowed:   count <= p.Max,
		Count:     count,
		Limit:     p.Max,
		Remaining: max(p.Max-count, 0),
		ResetAt:   now.Add(time.Duration(ttlMs) * time.Millisecond),
	}
	if blockMs > 0 {
		res.Allowed = false
		res.Remaining = 0
		res.Blocked = true
		res.BlockUntil = now.Add(time.Duration(blockMs) * time.Millisecond)
		res.Escalated = escalated
	}
	return res
}
