// Package ratelimit 限制协调者 Acquire 的调用频率。
//
// 重启风暴中大量节点同时获取租约，每次 Acquire 最坏要扫描全部槽位，
// 因此按调用方地址做令牌桶限流。单实例协调者使用进程内限流器，
// 多实例共享 Redis 存储时可切换为分布式限流器。
//
// 被限流的 gRPC 调用返回 codes.Unavailable，生成器按可重试错误处理；
// HTTP 返回 429。
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/xerrors"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 `mapstructure:"rate"`  // 每秒令牌数
	Burst int     `mapstructure:"burst"` // 桶容量
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 消耗 key 的一个令牌，返回是否放行
	Allow(ctx context.Context, key string, limit Limit) (bool, error)
	Close() error
}

// Mode 限流模式
type Mode string

const (
	ModeStandalone  Mode = "standalone"
	ModeDistributed Mode = "distributed"
)

// Config 限流配置
//
//	ratelimit:
//	  enabled: true
//	  mode: standalone
//	  acquire:
//	    rate: 50
//	    burst: 100
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	Mode    Mode `mapstructure:"mode"`
	// Acquire 每个调用方的 Acquire 频率
	Acquire Limit `mapstructure:"acquire"`
	// Prefix 分布式模式的 Redis key 前缀
	Prefix string `mapstructure:"prefix"`
	// MaxKeys 与 IdleTimeout 控制进程内限流器保留的 key
	MaxKeys     int           `mapstructure:"max_keys"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig 默认每个调用方 50 次/秒，突发 100
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Mode:        ModeStandalone,
		Acquire:     Limit{Rate: 50, Burst: 100},
		Prefix:      "leaseflake:ratelimit:",
		MaxKeys:     10000,
		IdleTimeout: 5 * time.Minute,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = d.MaxKeys
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
}

// New 按配置创建限流器；未启用返回放行一切的 Discard，分布式模式需要 redis 连接器
func New(cfg *Config, redisConn connector.RedisConnector, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit config is nil")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}
	c := *cfg
	c.setDefaults()
	o := newOptions(opts)

	switch c.Mode {
	case ModeStandalone:
		l, err := newStandalone(&c, o)
		if err != nil {
			return nil, err
		}
		return l, nil
	case ModeDistributed:
		if redisConn == nil {
			return nil, ErrConnectorNil
		}
		return newDistributed(&c, redisConn, o), nil
	default:
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown ratelimit mode %q", c.Mode)
	}
}

type discard struct{}

// Discard 放行一切的限流器
func Discard() Limiter { return discard{} }

func (discard) Allow(context.Context, string, Limit) (bool, error) { return true, nil }
func (discard) Close() error                                       { return nil }
