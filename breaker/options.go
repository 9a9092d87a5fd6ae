package breaker

import (
	"context"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

// Option 熔断器选项
type Option func(*options)

// KeyFunc 从 gRPC 调用中提取熔断 key
type KeyFunc func(ctx context.Context, fullMethod, target string) string

// SuccessFunc 判断错误是否应视为成功，返回 true 不计入失败
type SuccessFunc func(err error) bool

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	keyFunc   KeyFunc
	isSuccess SuccessFunc
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    clog.Discard(),
		meter:     metrics.Discard(),
		keyFunc:   TargetKey,
		isSuccess: IsBusinessError,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithKeyFunc 自定义拦截器的熔断 key
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// WithSuccessFunc 自定义哪些错误不计入失败
func WithSuccessFunc(fn SuccessFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.isSuccess = fn
		}
	}
}

// TargetKey 以连接目标地址为 key，同一协调者的所有方法共享熔断状态
func TargetKey(_ context.Context, _ string, target string) string {
	return target
}

// MethodKey 以完整方法名为 key
func MethodKey(_ context.Context, fullMethod string, _ string) string {
	return fullMethod
}
