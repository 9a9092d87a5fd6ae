package events

import (
	"context"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

// ErrConnectorNil 所选后端缺少连接器
var ErrConnectorNil = xerrors.New("events: connector is nil")

// New 按 cfg.Driver 创建 Publisher，cfg 为 nil 时返回 noop
func New(cfg *Config, opts ...Option) (Publisher, error) {
	if cfg == nil {
		return Discard(), nil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	switch c.Driver {
	case DriverNATS:
		if o.nats == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "nats driver")
		}
		return newNATSPublisher(c.Prefix, o), nil
	case DriverKafka:
		if o.kafka == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "kafka driver")
		}
		return newKafkaPublisher(c.Prefix, o), nil
	default:
		return Discard(), nil
	}
}

type noopPublisher struct{}

// Discard 返回丢弃所有事件的 Publisher
func Discard() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, LeaseEvent) error { return nil }
func (noopPublisher) Close(context.Context) error              { return nil }
