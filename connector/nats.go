package connector

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

type natsConnector struct {
	*base
	cfg  *NATSConfig
	conn *nats.Conn
}

// NewNATS 创建 NATS 连接器
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if cfg == nil {
		return nil, configError("nats config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &natsConnector{base: newBase("nats", cfg.Name, newOptions(opts)), cfg: cfg}, nil
}

func (c *natsConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	natsOpts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.Timeout(c.cfg.Timeout),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.PingInterval(c.cfg.PingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setHealthy(context.Background(), false)
			if err != nil {
				c.logger.Warn("nats disconnected", clog.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setHealthy(context.Background(), true)
			c.logger.Info("nats reconnected", clog.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.cfg.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.Token != "" {
		natsOpts = append(natsOpts, nats.Token(c.cfg.Token))
	}

	conn, err := nats.Connect(c.cfg.URL, natsOpts...)
	c.recordConnect(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to nats", clog.String("url", c.cfg.URL), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "nats[%s]: %v", c.name, err)
	}

	c.conn = conn
	c.logger.Info("connected to nats", clog.String("url", c.cfg.URL))
	return nil
}

func (c *natsConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if c.conn == nil {
		return nil
	}
	// Drain 会先把已发布的消息刷出去
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.logger.Info("nats connection closed")
	return nil
}

func (c *natsConnector) HealthCheck(ctx context.Context) error {
	conn := c.GetClient()
	if conn == nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrNotConnected, "nats[%s]", c.name)
	}
	if !conn.IsConnected() {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrHealthCheck, "nats[%s]: status %s", c.name, conn.Status())
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrHealthCheck, "nats[%s]: %v", c.name, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *natsConnector) GetClient() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
