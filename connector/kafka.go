package connector

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

type kafkaConnector struct {
	*base
	cfg    *KafkaConfig
	client *kgo.Client
}

// NewKafka 创建 Kafka 连接器
func NewKafka(cfg *KafkaConfig, opts ...Option) (KafkaConnector, error) {
	if cfg == nil {
		return nil, configError("kafka config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &kafkaConnector{base: newBase("kafka", cfg.Name, newOptions(opts)), cfg: cfg}, nil
}

func (c *kafkaConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.cfg.Seed...),
		kgo.ClientID(c.cfg.ClientID),
		kgo.RequestTimeoutOverhead(c.cfg.RequestTimeout),
		kgo.AllowAutoTopicCreation(),
		kgo.WithLogger(&kgoLogger{logger: c.logger}),
	)
	if err == nil {
		// franz-go 惰性建连，Ping 确认 broker 可达
		if err = client.Ping(ctx); err != nil {
			client.Close()
		}
	}
	c.recordConnect(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to kafka", clog.Any("seed", c.cfg.Seed), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "kafka[%s]: %v", c.name, err)
	}

	c.client = client
	c.logger.Info("connected to kafka", clog.Any("seed", c.cfg.Seed))
	return nil
}

func (c *kafkaConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if c.client != nil {
		c.client.Close()
		c.client = nil
		c.logger.Info("kafka connection closed")
	}
	return nil
}

func (c *kafkaConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrNotConnected, "kafka[%s]", c.name)
	}
	if err := client.Ping(ctx); err != nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrHealthCheck, "kafka[%s]: %v", c.name, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *kafkaConnector) GetClient() *kgo.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// kgoLogger 将 franz-go 日志转发到 clog
type kgoLogger struct {
	logger clog.Logger
}

func (l *kgoLogger) Level() kgo.LogLevel {
	return kgo.LogLevelWarn
}

func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]clog.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			fields = append(fields, clog.Any(key, keyvals[i+1]))
		}
	}
	switch level {
	case kgo.LogLevelError:
		l.logger.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.logger.Info(msg, fields...)
	default:
		l.logger.Debug(msg, fields...)
	}
}
