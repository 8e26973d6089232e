// Package ratelimit enforces the per-client and global transformation quotas.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one Allow call on a single window.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter consumes one unit of quota for identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (Result, error)
}

// SlidingWindow is a Redis sorted-set sliding window log. Each admitted
// attempt is a member scored by its timestamp in milliseconds.
type SlidingWindow struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

type WindowOption func(*SlidingWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) WindowOption {
	return func(w *SlidingWindow) { w.now = now }
}

func NewSlidingWindow(client redis.Cmdable, prefix string, limit int, window time.Duration, opts ...WindowOption) *SlidingWindow {
	w := &SlidingWindow{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *SlidingWindow) key(identifier string) string {
	if w.prefix == "" {
		return identifier
	}
	return w.prefix + ":" + identifier
}

// admitScript trims expired entries and admits the attempt only when the
// window has room, so a denied attempt never touches the set. It returns
// {admitted, count, oldestScore}.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  redis.call('PEXPIRE', key, ARGV[5])
  return {1, count + 1, ''}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local score = ''
if oldest[2] then
  score = oldest[2]
end
return {0, count, score}
`)

// Allow runs the trim, count and admit steps in one script.
func (w *SlidingWindow) Allow(ctx context.Context, identifier string) (Result, error) {
	key := w.key(identifier)
	now := w.now().UTC()
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	reply, err := admitScript.Run(ctx, w.client, []string{key},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(nowMs-w.window.Milliseconds(), 10),
		w.limit,
		member,
		w.window.Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(reply) != 3 {
		return Result{}, fmt.Errorf("sliding window %s: unexpected reply %v", key, reply)
	}

	admitted, _ := reply[0].(int64)
	count, _ := reply[1].(int64)
	res := Result{
		Allowed:   admitted == 1,
		Limit:     w.limit,
		Remaining: w.limit - int(count),
		Reset:     now.Add(w.window),
	}
	if !res.Allowed {
		res.Remaining = 0
		if s, ok := reply[2].(string); ok && s != "" {
			if score, err := strconv.ParseFloat(s, 64); err == nil {
				res.Reset = time.UnixMilli(int64(score)).UTC().Add(w.window)
			}
		}
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}
