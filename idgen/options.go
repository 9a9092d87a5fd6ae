package idgen

import (
	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/metrics"
)

// LeaseClient 生成器使用的协调者客户端，coordinator.Client 实现了它
type LeaseClient interface {
	coordinator.API
	Close() error
}

// Option 生成器选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	meter      metrics.Meter
	clock      clock.Clock
	client     LeaseClient
	clientOpts []coordinator.ClientOption
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		clock:  clock.System(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，自动追加 "idgen" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("idgen")
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

// WithClock 替换时钟，测试中配合 clock.Fake 使用
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLeaseClient 使用已有的协调者客户端，不再按 CoordinatorAddr 拨号。
// 生成器关闭时会一并关闭该客户端。
func WithLeaseClient(client LeaseClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithClientOptions 透传给 coordinator.Dial 的选项
func WithClientOptions(opts ...coordinator.ClientOption) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}
