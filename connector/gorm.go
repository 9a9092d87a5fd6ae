package connector

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

// gormConnector SQLite 与 MySQL 共用的 GORM 连接器
type gormConnector struct {
	*base
	dialector func() gorm.Dialector
	pool      func(db *gorm.DB) error
	target    clog.Field
	db        *gorm.DB
}

// NewSQLite 创建 SQLite 连接器
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, configError("sqlite config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &gormConnector{
		base:      newBase("sqlite", cfg.Name, newOptions(opts)),
		dialector: func() gorm.Dialector { return sqlite.Open(cfg.Path) },
		pool: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			// SQLite 单写者，串行化连接避免 database is locked
			sqlDB.SetMaxOpenConns(1)
			return nil
		},
		target: clog.String("path", cfg.Path),
	}, nil
}

// NewMySQL 创建 MySQL 连接器
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, configError("mysql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &gormConnector{
		base:      newBase("mysql", cfg.Name, newOptions(opts)),
		dialector: func() gorm.Dialector { return mysql.Open(cfg.dsn()) },
		pool: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			return nil
		},
		target: clog.String("host", cfg.Host),
	}, nil
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := c.open(ctx)
	c.recordConnect(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect", c.target, clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s[%s]: %v", c.kind, c.name, err)
	}

	c.db = db
	c.logger.Info("connected", c.target)
	return nil
}

func (c *gormConnector) open(ctx context.Context) (*gorm.DB, error) {
	db, err := gorm.Open(c.dialector(), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if c.tracing {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(c.name))); err != nil {
			c.logger.Warn("gorm tracing plugin failed", clog.Error(err))
		}
	}
	if err := c.pool(db); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return xerrors.Wrapf(err, "close %s[%s]", c.kind, c.name)
	}
	if err := sqlDB.Close(); err != nil {
		return xerrors.Wrapf(err, "close %s[%s]", c.kind, c.name)
	}
	c.logger.Info("connection closed")
	return nil
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.setHealthy(ctx, false)
		return xerrors.Wrapf(ErrNotConnected, "%s[%s]", c.kind, c.name)
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.setHealthy(ctx, false)
		c.logger.Warn("health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s[%s]: %v", c.kind, c.name, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
