package coordinator

import (
	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/events"
	"github.com/ceyewan/leaseflake/metrics"
)

// Option 配置 Service 的选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	clock     clock.Clock
	publisher events.Publisher
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    clog.Discard(),
		meter:     metrics.Discard(),
		clock:     clock.System(),
		publisher: events.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，自动追加 "coordinator" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("coordinator")
		}
	}
}

// WithMeter 注入指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock 替换时间源，测试中配合 clock.Fake 推进租约有效期
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPublisher 租约事件发布器
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}
