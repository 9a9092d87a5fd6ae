package ratelimit

import (
	"context"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

// Option 限流器选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	allowed metrics.Counter
	denied  metrics.Counter
}

func newOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	o.allowed, _ = metrics.Discard().Counter("", "")
	o.denied, _ = metrics.Discard().Counter("", "")
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("ratelimit")
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter == nil {
			return
		}
		if c, err := meter.Counter("leaseflake_ratelimit_allowed_total", "Requests allowed by the rate limiter"); err == nil {
			o.allowed = c
		}
		if c, err := meter.Counter("leaseflake_ratelimit_denied_total", "Requests denied by the rate limiter"); err == nil {
			o.denied = c
		}
	}
}

func (o *options) record(ctx context.Context, mode Mode, allowed bool) {
	if allowed {
		o.allowed.Inc(ctx, metrics.L("mode", string(mode)))
		return
	}
	o.denied.Inc(ctx, metrics.L("mode", string(mode)))
}
