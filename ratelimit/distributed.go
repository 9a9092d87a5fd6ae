package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/xerrors"
)

// gcraScript 以"下一次可放行时间"表示令牌桶状态，所有协调者实例共享
//
// KEYS[1] 限流 key
// ARGV[1] rate  ARGV[2] burst  ARGV[3] now(秒，小数)
const gcraScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local interval = 1 / rate
local fill = burst * interval

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil or tat < now then
  tat = now
end

local next_tat = tat + interval
if next_tat - now > fill then
  return 0
end

redis.call("SET", KEYS[1], next_tat, "EX", math.ceil(fill) + 1)
return 1
`

type distributedLimiter struct {
	conn   connector.RedisConnector
	prefix string
	opts   *options
	script *redis.Script
}

func newDistributed(cfg *Config, conn connector.RedisConnector, o *options) *distributedLimiter {
	return &distributedLimiter{
		conn:   conn,
		prefix: cfg.Prefix,
		opts:   o,
		script: redis.NewScript(gcraScript),
	}
}

func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.valid() {
		return false, ErrInvalidLimit
	}
	client := l.conn.GetClient()
	if client == nil {
		return false, connector.ErrNotConnected
	}

	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := l.script.Run(ctx, client, []string{l.prefix + key}, limit.Rate, limit.Burst, now).Int()
	if err != nil {
		l.opts.logger.Warn("distributed rate limit script failed", clog.String("key", key), clog.Error(err))
		return false, xerrors.Wrap(err, "run rate limit script")
	}

	allowed := res == 1
	l.opts.record(ctx, ModeDistributed, allowed)
	return allowed, nil
}

// Close 连接器由创建方关闭
func (l *distributedLimiter) Close() error {
	return nil
}
