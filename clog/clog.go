// Package clog 为 leaseflake 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层 slog 实现
//   - 层级命名空间：coordinator、coordinator.grpc、idgen ...
//   - 运行时调整级别（配合 config.Watch 热更新 log.level）
//   - 可选提取 OpenTelemetry trace_id / span_id
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"},
//	    clog.WithNamespace("coordinator"),
//	    clog.WithTraceContext(),
//	)
//	logger.Info("lease granted", clog.Int64("worker_id", 5))
package clog

import "github.com/ceyewan/leaseflake/xerrors"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("")
	}
	if err := config.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid clog config")
	}

	options := applyOptions(opts...)
	return newLogger(config, options)
}
