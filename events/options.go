package events

import (
	"context"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/metrics"
)

// Option 配置 Publisher 的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	nats   connector.NATSConnector
	kafka  connector.KafkaConnector
}

// WithLogger 注入日志记录器，自动追加 "events" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("events")
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

// WithNATSConnector nats 后端使用的连接器
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) { o.nats = conn }
}

// WithKafkaConnector kafka 后端使用的连接器
func WithKafkaConnector(conn connector.KafkaConnector) Option {
	return func(o *options) { o.kafka = conn }
}

// MetricPublished 已发布事件计数
const MetricPublished = "leaseflake_lease_events_published_total"

type recorder struct {
	published metrics.Counter
	driver    string
}

func newRecorder(meter metrics.Meter, driver Driver) *recorder {
	c, err := meter.Counter(MetricPublished, "Lease events handed to the event bus")
	if err != nil {
		c, _ = metrics.Discard().Counter(MetricPublished, "")
	}
	return &recorder{published: c, driver: string(driver)}
}

func (r *recorder) record(ctx context.Context, kind Kind, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	r.published.Inc(ctx,
		metrics.L("driver", r.driver),
		metrics.L("kind", string(kind)),
		metrics.L(metrics.LabelOutcome, outcome),
	)
}
