package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServerMetrics 协调者 gRPC 服务端的请求指标
type GRPCServerMetrics struct {
	r *red
}

// NewGRPCServerMetrics 创建 gRPC 服务端指标，cfg 为 nil 时使用默认指标名
func NewGRPCServerMetrics(m Meter, service string, cfg *ServerMetricsConfig) (*GRPCServerMetrics, error) {
	if cfg == nil {
		cfg = &ServerMetricsConfig{Service: service}
	}
	r, err := newRED(m, cfg, OperationGRPCServer, MetricGRPCServerRequestTotal, MetricGRPCServerDurationSeconds)
	if err != nil {
		return nil, err
	}
	return &GRPCServerMetrics{r: r}, nil
}

// Observe 记录一次调用
func (m *GRPCServerMetrics) Observe(ctx context.Context, fullMethod string, code codes.Code, d time.Duration) {
	if m == nil {
		return
	}
	m.r.observe(ctx, d,
		L(LabelMethod, orDefault(fullMethod, "unknown")),
		L(LabelGRPCCode, GRPCStatusClass(code)),
		L(LabelOutcome, GRPCOutcome(code)),
	)
}

// UnaryServerInterceptor 一元调用拦截器
func (m *GRPCServerMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.Observe(ctx, info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}
