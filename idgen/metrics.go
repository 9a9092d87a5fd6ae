package idgen

import (
	"context"

	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

const (
	// MetricGenerated 发出的 ID 总数 (Counter)
	MetricGenerated = "leaseflake_idgen_generated_total"

	// MetricClockDrift 时钟回拨事件 (Counter)，outcome=waited|rejected
	MetricClockDrift = "leaseflake_idgen_clock_drift_total"

	// MetricSequenceOverflow 序列号耗尽后等待下一毫秒的次数 (Counter)
	MetricSequenceOverflow = "leaseflake_idgen_sequence_overflow_total"

	// MetricStateTransitions 状态迁移 (Counter)，标签 from/to
	MetricStateTransitions = "leaseflake_idgen_state_transitions_total"

	// MetricRenewals 续约结果 (Counter)，result=ok|stale|error
	MetricRenewals = "leaseflake_idgen_renewals_total"
)

type generatorMetrics struct {
	generated   metrics.Counter
	drift       metrics.Counter
	overflow    metrics.Counter
	transitions metrics.Counter
	renewals    metrics.Counter
}

func newGeneratorMetrics(m metrics.Meter) (*generatorMetrics, error) {
	var errs xerrors.Collector
	counter := func(name, desc string) metrics.Counter {
		c, err := m.Counter(name, desc)
		errs.Collect(err)
		return c
	}
	gm := &generatorMetrics{
		generated:   counter(MetricGenerated, "Identifiers issued"),
		drift:       counter(MetricClockDrift, "Backward clock movements observed by the generator"),
		overflow:    counter(MetricSequenceOverflow, "Sequence exhaustion waits"),
		transitions: counter(MetricStateTransitions, "Generator state transitions"),
		renewals:    counter(MetricRenewals, "Lease renewal attempts"),
	}
	if err := errs.Err(); err != nil {
		return nil, xerrors.Wrap(err, "create idgen metrics")
	}
	return gm, nil
}

func (m *generatorMetrics) transition(ctx context.Context, from, to State) {
	m.transitions.Inc(ctx, metrics.L("from", from.String()), metrics.L("to", to.String()))
}
