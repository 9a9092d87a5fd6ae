package connector

import (
	"fmt"
	"time"

	"github.com/ceyewan/leaseflake/xerrors"
)

func configError(format string, args ...any) error {
	return xerrors.Wrapf(ErrConfig, format, args...)
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name         string        `mapstructure:"name"`
	Addr         string        `mapstructure:"addr"` // [必填] 例如 127.0.0.1:6379
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`      // 默认 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认 2
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认 3s
}

func (c *RedisConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.Addr == "" {
		return configError("redis addr is required")
	}
	if c.DB < 0 {
		return configError("redis db must be >= 0, got %d", c.DB)
	}
	return nil
}

// EtcdConfig Etcd 连接配置
type EtcdConfig struct {
	Name             string        `mapstructure:"name"`
	Endpoints        []string      `mapstructure:"endpoints"` // [必填]
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`       // 默认 5s
	KeepAliveTime    time.Duration `mapstructure:"keep_alive_time"`    // 默认 10s
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"` // 默认 3s
}

func (c *EtcdConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAliveTime <= 0 {
		c.KeepAliveTime = 10 * time.Second
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 3 * time.Second
	}
	if len(c.Endpoints) == 0 {
		return configError("etcd endpoints are required")
	}
	return nil
}

// SQLiteConfig SQLite 连接配置
type SQLiteConfig struct {
	Name string `mapstructure:"name"`
	// Path 文件路径，测试可用 file::memory:?cache=shared
	Path string `mapstructure:"path"`
}

func (c *SQLiteConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Path == "" {
		return configError("sqlite path is required")
	}
	return nil
}

// MySQLConfig MySQL 连接配置，DSN 非空时忽略其余连接字段
type MySQLConfig struct {
	Name            string        `mapstructure:"name"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"` // 默认 3306
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Charset         string        `mapstructure:"charset"`           // 默认 utf8mb4
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认 5
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认 20
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认 1h
}

func (c *MySQLConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.DSN != "" {
		return nil
	}
	switch {
	case c.Host == "":
		return configError("mysql host is required")
	case c.Username == "":
		return configError("mysql username is required")
	case c.Database == "":
		return configError("mysql database is required")
	}
	return nil
}

func (c *MySQLConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name          string        `mapstructure:"name"`
	URL           string        `mapstructure:"url"` // [必填] 例如 nats://127.0.0.1:4222
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`        // 默认 5s
	MaxReconnects int           `mapstructure:"max_reconnects"` // 默认 60
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"` // 默认 2s
	PingInterval  time.Duration `mapstructure:"ping_interval"`  // 默认 2m
}

func (c *NATSConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 2 * time.Minute
	}
	if c.URL == "" {
		return configError("nats url is required")
	}
	return nil
}

// KafkaConfig Kafka 连接配置
type KafkaConfig struct {
	Name           string        `mapstructure:"name"`
	Seed           []string      `mapstructure:"seed"` // [必填] broker 列表
	ClientID       string        `mapstructure:"client_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 默认 10s
}

func (c *KafkaConfig) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.ClientID == "" {
		c.ClientID = "leaseflake"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if len(c.Seed) == 0 {
		return configError("kafka seed brokers are required")
	}
	return nil
}
