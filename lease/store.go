package lease

import (
	"sort"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

// NewStore 按 cfg.Driver 创建租约存储
//
//	store, err := lease.NewStore(&lease.StoreConfig{Driver: lease.DriverRedis},
//	    lease.WithRedisConnector(redisConn), lease.WithLogger(logger))
func NewStore(cfg *StoreConfig, opts ...Option) (Store, error) {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	switch c.Driver {
	case DriverRedis:
		if o.redis == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis driver")
		}
		return newRedisStore(&c, o.redis, o.logger), nil
	case DriverEtcd:
		if o.etcd == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "etcd driver")
		}
		return newEtcdStore(&c, o.etcd, o.logger), nil
	case DriverGorm:
		if o.db == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "gorm driver")
		}
		return newGormStore(&c, o.db, o.logger)
	default:
		o.logger.Debug("using in-memory lease store")
		return NewMemoryStore(), nil
	}
}

func sortByWorkerID(leases []WorkerLease) {
	sort.Slice(leases, func(i, j int) bool { return leases[i].WorkerID < leases[j].WorkerID })
}
