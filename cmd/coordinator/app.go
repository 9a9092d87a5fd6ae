package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/events"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// app 持有协调者进程的全部组件，按创建的逆序关闭
type app struct {
	cfg    *AppConfig
	logger clog.Logger
	meter  metrics.Meter

	redisConn connector.RedisConnector
	closers   []closer

	grpc *coordinator.Server
	http *http.Server
}

func newApp(ctx context.Context, cfg *AppConfig, logger clog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	shutdownTrace, err := trace.Init(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	a.onClose("trace", shutdownTrace)

	a.meter, err = metrics.New(&cfg.Metrics, metrics.WithLogger(a.logger))
	if err != nil {
		return xerrors.Wrap(err, "init metrics")
	}
	a.onClose("metrics", a.meter.Shutdown)

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	pub, err := a.buildPublisher(ctx)
	if err != nil {
		return err
	}
	limiter, err := a.buildLimiter(ctx)
	if err != nil {
		return err
	}

	svc, err := coordinator.NewService(&cfg.Coordinator, store,
		coordinator.WithLogger(a.logger),
		coordinator.WithMeter(a.meter),
		coordinator.WithPublisher(pub))
	if err != nil {
		return err
	}

	a.grpc, err = coordinator.NewServer(svc,
		coordinator.WithServerLogger(a.logger),
		coordinator.WithServerMeter(a.meter),
		coordinator.WithServerTracing(),
		coordinator.WithAcquireRateLimit(limiter, cfg.RateLimit.Acquire))
	if err != nil {
		return err
	}

	handler, err := coordinator.NewHTTPHandler(svc,
		coordinator.WithHTTPLogger(a.logger),
		coordinator.WithHTTPMeter(a.meter),
		coordinator.WithHTTPTracing(serviceName),
		coordinator.WithHTTPAcquireRateLimit(limiter, cfg.RateLimit.Acquire),
		coordinator.WithHTTPAuth(cfg.Coordinator.HTTPAuthSecret))
	if err != nil {
		return err
	}
	a.http = &http.Server{
		Addr:              cfg.Coordinator.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func (a *app) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// open 建立连接并登记关闭
func (a *app) open(ctx context.Context, conn connector.Connector) error {
	if err := conn.Connect(ctx); err != nil {
		return xerrors.Wrapf(err, "connect %s", conn.Name())
	}
	a.onClose("connector "+conn.Name(), func(context.Context) error { return conn.Close() })
	return nil
}

func (a *app) connectorOptions() []connector.Option {
	return []connector.Option{
		connector.WithLogger(a.logger),
		connector.WithMeter(a.meter),
		connector.WithTracing(),
	}
}

// redis store 与分布式限流共用一个连接
func (a *app) redis(ctx context.Context) (connector.RedisConnector, error) {
	if a.redisConn != nil {
		return a.redisConn, nil
	}
	if a.cfg.Connectors.Redis == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "connectors.redis is not configured")
	}
	conn, err := connector.NewRedis(a.cfg.Connectors.Redis, a.connectorOptions()...)
	if err != nil {
		return nil, err
	}
	if err := a.open(ctx, conn); err != nil {
		return nil, err
	}
	a.redisConn = conn
	return conn, nil
}

func (a *app) buildStore(ctx context.Context) (lease.Store, error) {
	cfg := a.cfg.Store
	opts := []lease.Option{lease.WithLogger(a.logger)}

	switch cfg.Driver {
	case lease.DriverRedis:
		conn, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lease.WithRedisConnector(conn))
	case lease.DriverEtcd:
		if a.cfg.Connectors.Etcd == nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "connectors.etcd is not configured")
		}
		conn, err := connector.NewEtcd(a.cfg.Connectors.Etcd, a.connectorOptions()...)
		if err != nil {
			return nil, err
		}
		if err := a.open(ctx, conn); err != nil {
			return nil, err
		}
		opts = append(opts, lease.WithEtcdConnector(conn))
	case lease.DriverGorm:
		conn, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lease.WithDBConnector(conn))
	}

	store, err := lease.NewStore(&cfg, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create lease store")
	}
	a.onClose("store", func(context.Context) error { return store.Close() })
	a.logger.Info("lease store ready", clog.String("driver", string(cfg.Driver)))
	return store, nil
}

// database mysql 优先，其次 sqlite
func (a *app) database(ctx context.Context) (connector.TypedConnector[*gorm.DB], error) {
	var (
		conn connector.TypedConnector[*gorm.DB]
		err  error
	)
	switch {
	case a.cfg.Connectors.MySQL != nil:
		conn, err = connector.NewMySQL(a.cfg.Connectors.MySQL, a.connectorOptions()...)
	case a.cfg.Connectors.SQLite != nil:
		conn, err = connector.NewSQLite(a.cfg.Connectors.SQLite, a.connectorOptions()...)
	default:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "store driver gorm needs connectors.mysql or connectors.sqlite")
	}
	if err != nil {
		return nil, err
	}
	if err := a.open(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *app) buildPublisher(ctx context.Context) (events.Publisher, error) {
	cfg := a.cfg.Events
	opts := []events.Option{events.WithLogger(a.logger), events.WithMeter(a.meter)}

	switch cfg.Driver {
	case events.DriverNATS:
		if a.cfg.Connectors.NATS == nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "connectors.nats is not configured")
		}
		conn, err := connector.NewNATS(a.cfg.Connectors.NATS, a.connectorOptions()...)
		if err != nil {
			return nil, err
		}
		if err := a.open(ctx, conn); err != nil {
			return nil, err
		}
		opts = append(opts, events.WithNATSConnector(conn))
	case events.DriverKafka:
		if a.cfg.Connectors.Kafka == nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "connectors.kafka is not configured")
		}
		conn, err := connector.NewKafka(a.cfg.Connectors.Kafka, a.connectorOptions()...)
		if err != nil {
			return nil, err
		}
		if err := a.open(ctx, conn); err != nil {
			return nil, err
		}
		opts = append(opts, events.WithKafkaConnector(conn))
	}

	pub, err := events.New(&cfg, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create event publisher")
	}
	a.onClose("events", pub.Close)
	return pub, nil
}

func (a *app) buildLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	var conn connector.RedisConnector
	if a.cfg.RateLimit.Enabled && a.cfg.RateLimit.Mode == ratelimit.ModeDistributed {
		c, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		conn = c
	}
	limiter, err := ratelimit.New(&a.cfg.RateLimit, conn,
		ratelimit.WithLogger(a.logger), ratelimit.WithMeter(a.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create rate limiter")
	}
	a.onClose("ratelimit", func(context.Context) error { return limiter.Close() })
	return limiter, nil
}

// serve 启动 gRPC 与 HTTP 服务，任一退出即返回
func (a *app) serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.Coordinator.GRPCAddr)
	if err != nil {
		return xerrors.Wrapf(err, "listen %s", a.cfg.Coordinator.GRPCAddr)
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("grpc server listening", clog.String("addr", lis.Addr().String()))
		errCh <- a.grpc.Serve(lis)
	}()
	go func() {
		a.logger.Info("http server listening", clog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdown 停止对外服务后逆序关闭组件，错误汇总返回
func (a *app) shutdown(ctx context.Context) error {
	var errs xerrors.Collector
	if a.grpc != nil {
		a.grpc.GracefulStop(ctx)
	}
	if a.http != nil {
		errs.Collect(a.http.Shutdown(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("component close failed", clog.String("component", c.name), clog.Error(err))
			errs.Collect(xerrors.Wrapf(err, "close %s", c.name))
		}
	}
	a.closers = nil
	return errs.Err()
}
