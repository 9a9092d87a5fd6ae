package lease

import (
	"context"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/xerrors"
)

// etcdRecord etcd 中保存的编码形式，时间精度为毫秒，
// 同一条记录重复编码得到相同字节，可直接用于 Value 比较
type etcdRecord struct {
	WorkerID    int64  `msgpack:"w"`
	Version     uint64 `msgpack:"v"`
	HolderToken string `msgpack:"t"`
	ExpiresMs   int64  `msgpack:"e"`
	GrantedMs   int64  `msgpack:"g"`
	Holder      string `msgpack:"h"`
}

func encodeRecord(l WorkerLease) ([]byte, error) {
	return msgpack.Marshal(&etcdRecord{
		WorkerID:    l.WorkerID,
		Version:     l.Version,
		HolderToken: l.HolderToken,
		ExpiresMs:   l.ExpiresAt.UnixMilli(),
		GrantedMs:   l.GrantedAt.UnixMilli(),
		Holder:      l.Holder,
	})
}

func decodeRecord(b []byte) (WorkerLease, error) {
	var r etcdRecord
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return WorkerLease{}, err
	}
	return WorkerLease{
		WorkerID:    r.WorkerID,
		Version:     r.Version,
		HolderToken: r.HolderToken,
		ExpiresAt:   time.UnixMilli(r.ExpiresMs),
		GrantedAt:   time.UnixMilli(r.GrantedMs),
		Holder:      r.Holder,
	}, nil
}

type etcdStore struct {
	conn   connector.EtcdConnector
	prefix string
	logger clog.Logger
}

func newEtcdStore(cfg *StoreConfig, conn connector.EtcdConnector, logger clog.Logger) *etcdStore {
	return &etcdStore{
		conn:   conn,
		prefix: cfg.Prefix,
		logger: logger.With(clog.String("driver", string(DriverEtcd))),
	}
}

func (s *etcdStore) client() (*clientv3.Client, error) {
	c := s.conn.GetClient()
	if c == nil {
		return nil, connector.ErrNotConnected
	}
	return c, nil
}

func (s *etcdStore) key(workerID int64) string {
	return s.prefix + "/" + strconv.FormatInt(workerID, 10)
}

func (s *etcdStore) Get(ctx context.Context, workerID int64) (WorkerLease, bool, error) {
	c, err := s.client()
	if err != nil {
		return WorkerLease{}, false, err
	}
	resp, err := c.Get(ctx, s.key(workerID))
	if err != nil {
		return WorkerLease{}, false, xerrors.Wrap(err, "etcd get")
	}
	if len(resp.Kvs) == 0 {
		return WorkerLease{}, false, nil
	}
	l, err := decodeRecord(resp.Kvs[0].Value)
	if err != nil {
		return WorkerLease{}, false, xerrors.Wrapf(err, "decode lease %d", workerID)
	}
	return l, true, nil
}

func (s *etcdStore) CompareAndSwap(ctx context.Context, prev WorkerLease, found bool, next WorkerLease) (bool, error) {
	c, err := s.client()
	if err != nil {
		return false, err
	}
	key := s.key(next.WorkerID)
	value, err := encodeRecord(next)
	if err != nil {
		return false, xerrors.Wrap(err, "encode lease")
	}

	var cmp clientv3.Cmp
	if found {
		expected, err := encodeRecord(prev)
		if err != nil {
			return false, xerrors.Wrap(err, "encode lease")
		}
		cmp = clientv3.Compare(clientv3.Value(key), "=", string(expected))
	} else {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	}

	// 不挂 etcd lease，有效期只看记录里的 ExpiresMs
	resp, err := c.Txn(ctx).If(cmp).Then(clientv3.OpPut(key, string(value))).Commit()
	if err != nil {
		return false, xerrors.Wrap(err, "etcd txn")
	}
	return resp.Succeeded, nil
}

func (s *etcdStore) List(ctx context.Context) ([]WorkerLease, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	resp, err := c.Get(ctx, s.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, xerrors.Wrap(err, "etcd get prefix")
	}
	out := make([]WorkerLease, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		l, err := decodeRecord(kv.Value)
		if err != nil {
			s.logger.Warn("skip malformed lease record", clog.String("key", string(kv.Key)), clog.Error(err))
			continue
		}
		out = append(out, l)
	}
	sortByWorkerID(out)
	return out, nil
}

func (s *etcdStore) Close() error { return nil }
