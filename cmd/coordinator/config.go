package main

import (
	"time"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/events"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/trace"
)

const serviceName = "leaseflake-coordinator"

// AppConfig 协调者进程配置，对应 configs/coordinator.yaml
type AppConfig struct {
	Log         clog.Config        `mapstructure:"log"`
	Metrics     metrics.Config     `mapstructure:"metrics"`
	Trace       trace.Config       `mapstructure:"trace"`
	Coordinator coordinator.Config `mapstructure:"coordinator"`
	Store       lease.StoreConfig  `mapstructure:"store"`
	Events      events.Config      `mapstructure:"events"`
	RateLimit   ratelimit.Config   `mapstructure:"ratelimit"`
	Connectors  ConnectorsConfig   `mapstructure:"connectors"`

	// ShutdownTimeout 优雅退出的最长等待
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ConnectorsConfig 只有被 store/events/ratelimit 用到的连接器才需要配置
type ConnectorsConfig struct {
	Redis  *connector.RedisConfig  `mapstructure:"redis"`
	Etcd   *connector.EtcdConfig   `mapstructure:"etcd"`
	SQLite *connector.SQLiteConfig `mapstructure:"sqlite"`
	MySQL  *connector.MySQLConfig  `mapstructure:"mysql"`
	NATS   *connector.NATSConfig   `mapstructure:"nats"`
	Kafka  *connector.KafkaConfig  `mapstructure:"kafka"`
}

// defaults 写入 viper 的默认值，文件与环境变量可覆盖
func defaults() map[string]any {
	return map[string]any{
		"log.level":                    "info",
		"log.format":                   "json",
		"log.output":                   "stdout",
		"metrics.enabled":              true,
		"metrics.service_name":         serviceName,
		"metrics.port":                 9090,
		"metrics.path":                 "/metrics",
		"metrics.runtime":              true,
		"trace.enabled":                false,
		"trace.service_name":           serviceName,
		"coordinator.lease_ttl":        "30s",
		"coordinator.worker_bits":      10,
		"coordinator.grpc_addr":        ":7070",
		"coordinator.http_addr":        ":7071",
		"coordinator.http_auth_secret": "",
		"store.driver":                 string(lease.DriverMemory),
		"events.driver":                string(events.DriverNoop),
		"ratelimit.enabled":            true,
		"ratelimit.mode":               string(ratelimit.ModeStandalone),
		"ratelimit.acquire.rate":       50,
		"ratelimit.acquire.burst":      100,
		"shutdown_timeout":             "10s",
	}
}
