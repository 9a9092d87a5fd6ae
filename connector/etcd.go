package connector

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

type etcdConnector struct {
	*base
	cfg    *EtcdConfig
	client *clientv3.Client
}

// NewEtcd 创建 Etcd 连接器
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, configError("etcd config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &etcdConnector{base: newBase("etcd", cfg.Name, newOptions(opts)), cfg: cfg}, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.cfg.Endpoints,
		Username:             c.cfg.Username,
		Password:             c.cfg.Password,
		DialTimeout:          c.cfg.DialTimeout,
		DialKeepAliveTime:    c.cfg.KeepAliveTime,
		DialKeepAliveTimeout: c.cfg.KeepAliveTimeout,
		Context:              context.WithoutCancel(ctx),
	})
	if err != nil {
		c.recordConnect(ctx, err)
		return xerrors.Wrapf(ErrConnection, "etcd[%s]: %v", c.name, err)
	}

	if err := c.probe(ctx, client); err != nil {
		c.recordConnect(ctx, err)
		_ = client.Close()
		c.logger.Error("failed to connect to etcd", clog.Any("endpoints", c.cfg.Endpoints), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd[%s]: %v", c.name, err)
	}

	c.recordConnect(ctx, nil)
	c.client = client
	c.logger.Info("connected to etcd", clog.Any("endpoints", c.cfg.Endpoints))
	return nil
}

// probe 任一 endpoint 返回 Status 即视为可用
func (c *etcdConnector) probe(ctx context.Context, client *clientv3.Client) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	var lastErr error
	for _, ep := range c.cfg.Endpoints {
		if _, err := client.Status(ctx, ep); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return xerrors.Wrapf(err, "close etcd[%s]", c.name)
	}
	c.logger.Info("etcd connection closed")
	return nil
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrNotConnected, "etcd[%s]", c.name)
	}
	if err := c.probe(ctx, client); err != nil {
		c.setHealthy(ctx, false)
		c.logger.Warn("etcd health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "etcd[%s]: %v", c.name, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
