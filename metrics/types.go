// Package metrics 为 leaseflake 提供统一的指标收集能力。
//
// 基于 OpenTelemetry 标准构建，通过 Prometheus exporter 暴露，接口只有
// Counter、Gauge、Histogram 三种，组件通过 WithMeter 注入。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "leaseflake-coordinator",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	defer meter.Shutdown(ctx)
//
//	granted, _ := meter.Counter("leaseflake_lease_grants_total", "Lease grants")
//	granted.Inc(ctx, metrics.L("reason", "fresh"))
//
// Enabled 为 false 时返回 noop 实现，组件无需判空。
package metrics

import "context"

// Counter 只增不减的累计值，例如租约授予次数、时钟回拨拒绝次数
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意增减的瞬时值，例如当前存活租约数、生成器状态
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如 RPC 耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂
//
// 同名指标可重复创建，底层 OpenTelemetry SDK 会复用同一个 instrument。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新并关闭，应用退出时调用
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	Unit    string    // UCUM 单位，例如 "s"、"By"
	Buckets []float64 // 仅对 Histogram 生效
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置 Histogram 的显式桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
