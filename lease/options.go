package lease

import (
	"gorm.io/gorm"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
)

// Option 配置 Store 的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	redis  connector.RedisConnector
	etcd   connector.EtcdConnector
	db     connector.TypedConnector[*gorm.DB]
}

// WithLogger 注入日志记录器，自动追加 "lease" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("lease")
		}
	}
}

// WithRedisConnector redis 后端使用的连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) { o.redis = conn }
}

// WithEtcdConnector etcd 后端使用的连接器
func WithEtcdConnector(conn connector.EtcdConnector) Option {
	return func(o *options) { o.etcd = conn }
}

// WithDBConnector gorm 后端使用的连接器，SQLite 与 MySQL 连接器均可
func WithDBConnector(conn connector.TypedConnector[*gorm.DB]) Option {
	return func(o *options) { o.db = conn }
}
