package events

import (
	"context"
	"strconv"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

// kafkaPublisher 异步生产，Publish 只负责入队，发送结果在回调里记录；
// workerId 作为 record key，同一槽位的事件落在同一分区内保持顺序
type kafkaPublisher struct {
	conn     connector.KafkaConnector
	prefix   string
	logger   clog.Logger
	rec      *recorder
	inflight sync.WaitGroup
}

func newKafkaPublisher(prefix string, o *options) *kafkaPublisher {
	return &kafkaPublisher{
		conn:   o.kafka,
		prefix: prefix,
		logger: o.logger.With(clog.String("driver", string(DriverKafka))),
		rec:    newRecorder(o.meter, DriverKafka),
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, e LeaseEvent) error {
	client := p.conn.GetClient()
	if client == nil {
		p.rec.record(ctx, e.Kind, connector.ErrNotConnected)
		return connector.ErrNotConnected
	}
	data, err := Encode(e)
	if err != nil {
		p.rec.record(ctx, e.Kind, err)
		return xerrors.Wrap(err, "encode lease event")
	}

	topic := Subject(p.prefix, e.Kind)
	ctx, span, headers := trace.StartPublishSpan(ctx, trace.MessagingSystemKafka, topic,
		attribute.Int64("leaseflake.worker_id", e.WorkerID))

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(workerKey(e.WorkerID)),
		Value: data,
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	// 租约 RPC 返回后 ctx 会被取消，生产不能随之中止
	produceCtx := context.WithoutCancel(ctx)
	p.inflight.Add(1)
	client.Produce(produceCtx, record, func(r *kgo.Record, err error) {
		defer p.inflight.Done()
		if err != nil {
			p.logger.Warn("produce lease event failed",
				clog.String("topic", r.Topic), clog.Int64("worker_id", e.WorkerID), clog.Error(err))
		}
		trace.MarkSpanError(span, err)
		span.End()
		p.rec.record(produceCtx, e.Kind, err)
	})
	return nil
}

func (p *kafkaPublisher) Close(ctx context.Context) error {
	if client := p.conn.GetClient(); client != nil {
		if err := client.Flush(ctx); err != nil {
			return xerrors.Wrap(err, "kafka flush")
		}
	}
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func workerKey(workerID int64) string {
	return "worker-" + strconv.FormatInt(workerID, 10)
}
