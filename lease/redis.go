package lease

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/xerrors"
)

// KEYS[1] 槽位 key
// ARGV[1] 期望存在 "1"/"0"  ARGV[2] 期望 version  ARGV[3] 期望 token
// ARGV[4..9] 新记录 worker/version/token/expires_ms/granted_ms/holder
var casScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'version', 'token')
if ARGV[1] == '1' then
  if cur[1] ~= ARGV[2] or cur[2] ~= ARGV[3] then
    return 0
  end
elseif cur[1] then
  return 0
end
redis.call('HSET', KEYS[1],
  'worker', ARGV[4], 'version', ARGV[5], 'token', ARGV[6],
  'expires_ms', ARGV[7], 'granted_ms', ARGV[8], 'holder', ARGV[9])
return 1
`)

type redisStore struct {
	conn   connector.RedisConnector
	prefix string
	logger clog.Logger
}

func newRedisStore(cfg *StoreConfig, conn connector.RedisConnector, logger clog.Logger) *redisStore {
	return &redisStore{
		conn:   conn,
		prefix: cfg.Prefix,
		logger: logger.With(clog.String("driver", string(DriverRedis))),
	}
}

func (s *redisStore) client() (*redis.Client, error) {
	c := s.conn.GetClient()
	if c == nil {
		return nil, connector.ErrNotConnected
	}
	return c, nil
}

func (s *redisStore) key(workerID int64) string {
	return s.prefix + ":" + strconv.FormatInt(workerID, 10)
}

func (s *redisStore) Get(ctx context.Context, workerID int64) (WorkerLease, bool, error) {
	c, err := s.client()
	if err != nil {
		return WorkerLease{}, false, err
	}
	fields, err := c.HGetAll(ctx, s.key(workerID)).Result()
	if err != nil {
		return WorkerLease{}, false, xerrors.Wrap(err, "redis hgetall")
	}
	if len(fields) == 0 {
		return WorkerLease{}, false, nil
	}
	l, err := decodeHash(fields)
	if err != nil {
		return WorkerLease{}, false, xerrors.Wrapf(err, "decode lease %d", workerID)
	}
	return l, true, nil
}

func (s *redisStore) CompareAndSwap(ctx context.Context, prev WorkerLease, found bool, next WorkerLease) (bool, error) {
	c, err := s.client()
	if err != nil {
		return false, err
	}
	expect := "0"
	if found {
		expect = "1"
	}
	res, err := casScript.Run(ctx, c, []string{s.key(next.WorkerID)},
		expect,
		strconv.FormatUint(prev.Version, 10),
		prev.HolderToken,
		strconv.FormatInt(next.WorkerID, 10),
		strconv.FormatUint(next.Version, 10),
		next.HolderToken,
		strconv.FormatInt(next.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(next.GrantedAt.UnixMilli(), 10),
		next.Holder,
	).Int()
	if err != nil {
		return false, xerrors.Wrap(err, "redis compare and swap")
	}
	return res == 1, nil
}

func (s *redisStore) List(ctx context.Context) ([]WorkerLease, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	var out []WorkerLease
	iter := c.Scan(ctx, 0, s.prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := c.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, xerrors.Wrap(err, "redis hgetall")
		}
		if len(fields) == 0 {
			continue
		}
		l, err := decodeHash(fields)
		if err != nil {
			s.logger.Warn("skip malformed lease record", clog.String("key", key), clog.Error(err))
			continue
		}
		out = append(out, l)
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.Wrap(err, "redis scan")
	}
	sortByWorkerID(out)
	return out, nil
}

func (s *redisStore) Close() error { return nil }

func decodeHash(fields map[string]string) (WorkerLease, error) {
	var (
		l    WorkerLease
		errs xerrors.Collector
	)
	workerID, err := strconv.ParseInt(fields["worker"], 10, 64)
	errs.Collect(err)
	version, err := strconv.ParseUint(fields["version"], 10, 64)
	errs.Collect(err)
	expiresMs, err := strconv.ParseInt(fields["expires_ms"], 10, 64)
	errs.Collect(err)
	grantedMs, err := strconv.ParseInt(fields["granted_ms"], 10, 64)
	errs.Collect(err)
	if err := errs.Err(); err != nil {
		return l, err
	}
	l.WorkerID = workerID
	l.Version = version
	l.HolderToken = fields["token"]
	l.ExpiresAt = time.UnixMilli(expiresMs)
	l.GrantedAt = time.UnixMilli(grantedMs)
	l.Holder = strings.TrimSpace(fields["holder"])
	return l, nil
}
