package clog

import "context"

// Logger 日志接口
//
// 五个级别 Debug、Info、Warn、Error、Fatal，每个级别都有带 Context 的版本，
// 带 Context 的版本会按选项提取 Context 字段与 trace 信息。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，例如 "coordinator" -> "coordinator.grpc"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别，对同一 New 派生出的所有子 Logger 生效
	SetLevel(level Level) error

	// Flush 同步输出缓冲区（文件输出时调用 Sync）
	Flush()
}
