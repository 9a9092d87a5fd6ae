//go:build integration

package testkit

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/leaseflake/connector"
)

// NewRedisConnector 启动 Redis 容器并返回已连接的连接器
func NewRedisConnector(t *testing.T) connector.RedisConnector {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7.2-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	conn, err := connector.NewRedis(&connector.RedisConfig{
		Name: "test-redis",
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx), "failed to connect to redis")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewEtcdConnector 启动 Etcd 容器并返回已连接的连接器
func NewEtcdConnector(t *testing.T) connector.EtcdConnector {
	ctx := context.Background()
	container, err := tcetcd.Run(ctx, "quay.io/coreos/etcd:v3.5.9")
	require.NoError(t, err, "failed to start etcd container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "2379")
	require.NoError(t, err)

	conn, err := connector.NewEtcd(&connector.EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   []string{fmt.Sprintf("%s:%s", host, port.Port())},
		DialTimeout: 5 * time.Second,
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx), "failed to connect to etcd")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewMySQLConnector 启动 MySQL 容器并返回已连接的连接器
func NewMySQLConnector(t *testing.T) connector.MySQLConnector {
	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("leaseflake"),
		tcmysql.WithUsername("leaseflake"),
		tcmysql.WithPassword("leaseflake"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	conn, err := connector.NewMySQL(&connector.MySQLConfig{
		Name:     "test-mysql",
		Host:     host,
		Port:     port,
		Username: "leaseflake",
		Password: "leaseflake",
		Database: "leaseflake",
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err)

	// 容器端口就绪后 MySQL 仍可能在初始化，重试直到可连接
	connectCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	for {
		if err = conn.Connect(connectCtx); err == nil {
			break
		}
		select {
		case <-connectCtx.Done():
			require.NoError(t, err, "timeout waiting for mysql to be ready")
		case <-time.After(2 * time.Second):
		}
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewNATSConnector 启动 NATS 容器并返回已连接的连接器
func NewNATSConnector(t *testing.T) connector.NATSConnector {
	ctx := context.Background()
	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	require.NoError(t, err, "failed to start nats container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	conn, err := connector.NewNATS(&connector.NATSConfig{
		Name:          "test-nats",
		URL:           "nats://" + host + ":" + port.Port(),
		MaxReconnects: 10,
		ReconnectWait: 100 * time.Millisecond,
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx), "failed to connect to nats")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewKafkaConnector 启动 Kafka 容器并返回已连接的连接器
func NewKafkaConnector(t *testing.T) connector.KafkaConnector {
	ctx := context.Background()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("leaseflake-test"),
	)
	require.NoError(t, err, "failed to start kafka container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	conn, err := connector.NewKafka(&connector.KafkaConfig{
		Name:           "test-kafka",
		Seed:           brokers,
		RequestTimeout: 5 * time.Second,
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx), "failed to connect to kafka")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
