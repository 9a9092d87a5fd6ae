package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 消息语义属性
const (
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"
)

// 租约事件使用的消息系统
const (
	MessagingSystemNATS  = "nats"
	MessagingSystemKafka = "kafka"
)

const tracerName = "github.com/ceyewan/leaseflake"

// Tracer 返回全局 Tracer
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// StartPublishSpan 开启 Producer Span，返回已注入链路信息的 headers
func StartPublishSpan(ctx context.Context, system, destination string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span, map[string]string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := Tracer().Start(ctx, "publish "+destination, oteltrace.WithSpanKind(oteltrace.SpanKindProducer))
	span.SetAttributes(
		attribute.String(AttrMessagingSystem, system),
		attribute.String(AttrMessagingDestination, destination),
		attribute.String(AttrMessagingOperation, "publish"),
	)
	span.SetAttributes(attrs...)

	headers := make(map[string]string, 2)
	Inject(ctx, headers)
	return ctx, span, headers
}

// MarkSpanError err 非空时记录到 Span 并标记错误状态
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
