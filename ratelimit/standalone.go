package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/time/rate"

	"github.com/ceyewan/leaseflake/xerrors"
)

// standaloneLimiter 进程内令牌桶，桶存放在 otter 中，
// 每次访问把过期时间顺延 IdleTimeout，空闲 key 与超出 MaxKeys 的 key 由 otter 淘汰
type standaloneLimiter struct {
	cfg  *Config
	opts *options

	// mu 保证同一 key 只创建一个桶
	mu      sync.Mutex
	buckets *otter.Cache[string, *rate.Limiter]
}

func newStandalone(cfg *Config, o *options) (*standaloneLimiter, error) {
	buckets, err := otter.New(&otter.Options[string, *rate.Limiter]{
		MaximumSize:      cfg.MaxKeys,
		ExpiryCalculator: otter.ExpiryWriting[string, *rate.Limiter](cfg.IdleTimeout),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build limiter cache")
	}
	return &standaloneLimiter{cfg: cfg, opts: o, buckets: buckets}, nil
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.valid() {
		return false, ErrInvalidLimit
	}

	// 同一 key 规则变化时视为新桶
	bk := key + "|" + strconv.FormatFloat(limit.Rate, 'g', -1, 64) + "|" + strconv.Itoa(limit.Burst)
	allowed := l.bucket(bk, limit).AllowN(time.Now(), 1)

	l.opts.record(ctx, ModeStandalone, allowed)
	return allowed, nil
}

func (l *standaloneLimiter) bucket(bk string, limit Limit) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets.GetIfPresent(bk)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)
		l.buckets.Set(bk, lim)
	}
	l.buckets.SetExpiresAfter(bk, l.cfg.IdleTimeout)
	return lim
}

func (l *standaloneLimiter) Close() error {
	return nil
}
