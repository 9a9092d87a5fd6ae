// Command coordinator 运行 workerId 租约协调者，对外提供 gRPC 与 HTTP 接口。
//
// 配置从 ./coordinator.yaml 或 ./configs/coordinator.yaml 读取，
// 环境变量 LEASEFLAKE_ 前缀覆盖，LEASEFLAKE_ENV=prod 时叠加 coordinator.prod.yaml。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/config"
	"github.com/ceyewan/leaseflake/xerrors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coordinator:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := make([]config.Option, 0, len(defaults()))
	for k, v := range defaults() {
		opts = append(opts, config.WithDefault(k, v))
	}
	loader, err := config.New(&config.Config{Name: "coordinator"}, opts...)
	if err != nil {
		return err
	}
	if err := loader.Load(ctx); err != nil {
		return xerrors.Wrap(err, "load config")
	}

	var cfg AppConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return err
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace("leaseflake"), clog.WithTraceContext())
	if err != nil {
		return err
	}
	defer logger.Flush()
	go watchLogLevel(ctx, loader, logger)

	a, err := newApp(ctx, &cfg, logger)
	if err != nil {
		logger.Error("coordinator init failed", clog.Error(err))
		return err
	}

	logger.Info("coordinator starting",
		clog.String("store", string(cfg.Store.Driver)),
		clog.String("events", string(cfg.Events.Driver)),
		clog.Duration("lease_ttl", cfg.Coordinator.LeaseTTL),
		clog.Int("worker_bits", cfg.Coordinator.WorkerBits))

	serveErr := a.serve(ctx)
	if serveErr != nil {
		logger.Error("server stopped unexpectedly", clog.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("coordinator shutting down")
	var errs xerrors.Collector
	errs.Collect(serveErr)
	errs.Collect(a.shutdown(shutdownCtx))
	return errs.Err()
}

// watchLogLevel 配置文件中 log.level 变化时热更新日志级别
func watchLogLevel(ctx context.Context, loader config.Loader, logger clog.Logger) {
	ch, err := loader.Watch(ctx, "log.level")
	if err != nil {
		logger.Warn("watch log.level failed", clog.Error(err))
		return
	}
	for ev := range ch {
		s, _ := ev.Value.(string)
		level, err := clog.ParseLevel(s)
		if err != nil {
			logger.Warn("ignore invalid log level", clog.String("value", s))
			continue
		}
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("set log level failed", clog.Error(err))
			continue
		}
		logger.Info("log level changed", clog.String("level", level.String()))
	}
}
