package connector

import (
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

// Option 连接器选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracing bool
}

func newOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，命名空间为 connector
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 注入指标收集器，记录连接尝试与健康状态
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithTracing 为 Redis 与 GORM 客户端安装 OpenTelemetry 插桩
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}
