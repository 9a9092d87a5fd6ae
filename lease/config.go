package lease

import (
	"github.com/ceyewan/leaseflake/xerrors"
)

// Driver 存储后端类型
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverEtcd   Driver = "etcd"
	DriverGorm   Driver = "gorm"
)

// StoreConfig 租约存储配置
//
//	store:
//	  driver: redis
//	  prefix: leaseflake:lease
type StoreConfig struct {
	Driver Driver `mapstructure:"driver"`

	// Prefix redis key 前缀或 etcd key 前缀
	Prefix string `mapstructure:"prefix"`

	// Table gorm 后端的表名
	Table string `mapstructure:"table"`
}

func (c *StoreConfig) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Prefix == "" {
		switch c.Driver {
		case DriverEtcd:
			c.Prefix = "/leaseflake/lease"
		default:
			c.Prefix = "leaseflake:lease"
		}
	}
	if c.Table == "" {
		c.Table = "worker_leases"
	}
}

func (c *StoreConfig) validate() error {
	switch c.Driver {
	case DriverMemory, DriverRedis, DriverEtcd, DriverGorm:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported lease store driver %q", c.Driver)
	}
	return nil
}
