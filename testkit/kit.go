// Package testkit 提供 leaseflake 各组件测试共用的依赖构造。
//
// 不带构建标签的辅助函数只依赖进程内资源（SQLite 内存库、discard logger）；
// 需要真实 Redis/Etcd/MySQL/NATS/Kafka 的辅助函数位于 containers.go，
// 仅在 -tags integration 下编译，通过 testcontainers 启动容器。
package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，ctx 随测试结束取消
func NewKit(t *testing.T) *Kit {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Kit{
		Ctx:    ctx,
		Logger: NewLogger(),
		Meter:  metrics.Discard(),
	}
}

// NewLogger 返回测试用 logger
//
// 默认丢弃输出，设置 LEASEFLAKE_TEST_LOG=1 时以开发格式输出到 stderr。
func NewLogger() clog.Logger {
	if os.Getenv("LEASEFLAKE_TEST_LOG") == "" {
		return clog.Discard()
	}
	logger, err := clog.New(clog.NewDevDefaultConfig("leaseflake"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回启用采集但不监听端口的 meter
func NewMeter(t *testing.T) metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("leaseflake-test"))
	if err != nil {
		t.Fatalf("failed to create meter: %v", err)
	}
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回 8 位随机串，用于 key 前缀、表名后缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}
