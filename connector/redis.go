package connector

import (
	"context"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

type redisConnector struct {
	*base
	cfg    *RedisConfig
	client *redis.Client
}

// NewRedis 创建 Redis 连接器，Connect 时才建立连接
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, configError("redis config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &redisConnector{base: newBase("redis", cfg.Name, newOptions(opts)), cfg: cfg}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         c.cfg.Addr,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		PoolSize:     c.cfg.PoolSize,
		MinIdleConns: c.cfg.MinIdleConns,
		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if c.tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			c.logger.Warn("redis tracing instrumentation failed", clog.Error(err))
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			c.logger.Warn("redis metrics instrumentation failed", clog.Error(err))
		}
	}

	err := client.Ping(ctx).Err()
	c.recordConnect(ctx, err)
	if err != nil {
		_ = client.Close()
		c.logger.Error("failed to connect to redis", clog.String("addr", c.cfg.Addr), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "redis[%s] %s: %v", c.name, c.cfg.Addr, err)
	}

	c.client = client
	c.logger.Info("connected to redis", clog.String("addr", c.cfg.Addr), clog.Int("db", c.cfg.DB))
	return nil
}

func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return xerrors.Wrapf(err, "close redis[%s]", c.name)
	}
	c.logger.Info("redis connection closed")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrNotConnected, "redis[%s]", c.name)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		c.setHealthy(ctx, false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis[%s]: %v", c.name, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *redisConnector) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
