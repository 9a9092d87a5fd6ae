// Package connector 管理 leaseflake 依赖的外部连接：租约存储后端
// (Redis、Etcd、SQLite、MySQL) 与租约事件总线 (NATS、Kafka)。
//
// 连接器只负责连接生命周期，业务读写由 lease、events 等组件借用
// GetClient() 完成。所有权遵循"谁创建谁关闭"：组件不调用 Close。
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//	    connector.WithLogger(logger))
//	if err != nil { ... }
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil { ... }
//	store, err := lease.NewStore(&lease.StoreConfig{Driver: lease.DriverRedis},
//	    lease.WithRedisConnector(conn))
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
)

// Connector 连接器通用行为，方法均并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error
	// Close 释放连接，幂等
	Close() error
	// HealthCheck 主动探活并刷新 IsHealthy 缓存
	HealthCheck(ctx context.Context) error
	IsHealthy() bool
	Name() string
}

// TypedConnector 带类型化客户端的连接器，Connect 之前 GetClient 可能为 nil
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

type (
	RedisConnector  = TypedConnector[*redis.Client]
	EtcdConnector   = TypedConnector[*clientv3.Client]
	SQLiteConnector = TypedConnector[*gorm.DB]
	MySQLConnector  = TypedConnector[*gorm.DB]
	NATSConnector   = TypedConnector[*nats.Conn]
	KafkaConnector  = TypedConnector[*kgo.Client]
)
