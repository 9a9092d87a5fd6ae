package events

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

type natsPublisher struct {
	conn   connector.NATSConnector
	prefix string
	logger clog.Logger
	rec    *recorder
}

func newNATSPublisher(prefix string, o *options) *natsPublisher {
	return &natsPublisher{
		conn:   o.nats,
		prefix: prefix,
		logger: o.logger.With(clog.String("driver", string(DriverNATS))),
		rec:    newRecorder(o.meter, DriverNATS),
	}
}

func (p *natsPublisher) Publish(ctx context.Context, e LeaseEvent) (err error) {
	subject := Subject(p.prefix, e.Kind)
	ctx, span, headers := trace.StartPublishSpan(ctx, trace.MessagingSystemNATS, subject,
		attribute.Int64("leaseflake.worker_id", e.WorkerID))
	defer func() {
		trace.MarkSpanError(span, err)
		span.End()
		p.rec.record(ctx, e.Kind, err)
	}()

	conn := p.conn.GetClient()
	if conn == nil {
		return connector.ErrNotConnected
	}
	data, err := Encode(e)
	if err != nil {
		return xerrors.Wrap(err, "encode lease event")
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header, len(headers))}
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if err := conn.PublishMsg(msg); err != nil {
		return xerrors.Wrapf(err, "nats publish %s", subject)
	}
	return nil
}

func (p *natsPublisher) Close(ctx context.Context) error {
	conn := p.conn.GetClient()
	if conn == nil || conn.IsClosed() {
		return nil
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		p.logger.Warn("flush pending lease events failed", clog.Error(err))
		return xerrors.Wrap(err, "nats flush")
	}
	return nil
}
