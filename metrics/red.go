package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/leaseflake/xerrors"
)

// 默认的请求指标名
const (
	MetricGRPCServerRequestTotal    = "leaseflake_grpc_server_requests_total"
	MetricGRPCServerDurationSeconds = "leaseflake_grpc_server_request_duration_seconds"
	MetricHTTPServerRequestTotal    = "leaseflake_http_server_requests_total"
	MetricHTTPServerDurationSeconds = "leaseflake_http_server_request_duration_seconds"
)

// DefaultDurationBuckets 协调者 RPC 的耗时桶，租约操作多为单次存储往返
var DefaultDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// ServerMetricsConfig 请求 RED 指标配置，gRPC 与 HTTP 共用
type ServerMetricsConfig struct {
	Service             string
	RequestTotalName    string
	RequestDurationName string
	DurationBuckets     []float64
	StaticLabels        []Label
}

// red 一组请求计数与耗时分布
type red struct {
	service      string
	operation    string
	requestTotal Counter
	duration     Histogram
	staticLabels []Label
}

func newRED(m Meter, cfg *ServerMetricsConfig, operation, defTotal, defDuration string) (*red, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "server metrics config is nil")
	}

	totalName := orDefault(cfg.RequestTotalName, defTotal)
	durationName := orDefault(cfg.RequestDurationName, defDuration)

	counter, err := m.Counter(totalName, "Total number of "+operation+" requests.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s request counter", operation)
	}

	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultDurationBuckets
	}
	duration, err := m.Histogram(durationName, operation+" request duration in seconds.",
		WithUnit("s"), WithBuckets(buckets))
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s duration histogram", operation)
	}

	return &red{
		service:      orDefault(cfg.Service, "unknown"),
		operation:    operation,
		requestTotal: counter,
		duration:     duration,
		staticLabels: append([]Label(nil), cfg.StaticLabels...),
	}, nil
}

func (r *red) observe(ctx context.Context, d time.Duration, extra ...Label) {
	labels := make([]Label, 0, len(r.staticLabels)+2+len(extra))
	labels = append(labels, r.staticLabels...)
	labels = append(labels, L(LabelService, r.service), L(LabelOperation, r.operation))
	labels = append(labels, extra...)

	r.requestTotal.Inc(ctx, labels...)
	r.duration.Record(ctx, d.Seconds(), labels...)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
