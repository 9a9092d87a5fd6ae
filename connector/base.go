package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

const (
	metricConnectAttempts = "leaseflake_connector_connect_total"
	metricHealthy         = "leaseflake_connector_healthy"
)

// base 各连接器共享的状态：互斥锁、健康缓存、日志与指标
type base struct {
	kind    string
	name    string
	logger  clog.Logger
	tracing bool

	mu      sync.RWMutex
	healthy atomic.Bool

	attempts metrics.Counter
	health   metrics.Gauge
}

func newBase(kind, name string, o *options) *base {
	b := &base{
		kind:    kind,
		name:    name,
		logger:  o.logger.With(clog.String("connector", kind), clog.String("name", name)),
		tracing: o.tracing,
	}
	// Discard Meter 不会返回错误，真实 Meter 出错时退化为 noop
	var err error
	if b.attempts, err = o.meter.Counter(metricConnectAttempts, "Connector connect attempts"); err != nil {
		b.attempts, _ = metrics.Discard().Counter(metricConnectAttempts, "")
	}
	if b.health, err = o.meter.Gauge(metricHealthy, "Connector health (1 healthy, 0 unhealthy)"); err != nil {
		b.health, _ = metrics.Discard().Gauge(metricHealthy, "")
	}
	return b
}

func (b *base) Name() string { return b.name }

func (b *base) IsHealthy() bool { return b.healthy.Load() }

func (b *base) labels() []metrics.Label {
	return []metrics.Label{metrics.L("connector", b.kind), metrics.L("name", b.name)}
}

func (b *base) recordConnect(ctx context.Context, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	b.attempts.Inc(ctx, append(b.labels(), metrics.L(metrics.LabelOutcome, outcome))...)
	b.setHealthy(ctx, err == nil)
}

func (b *base) setHealthy(ctx context.Context, ok bool) {
	b.healthy.Store(ok)
	v := 0.0
	if ok {
		v = 1
	}
	b.health.Set(ctx, v, b.labels()...)
}
