package idgen

import (
	"time"

	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/xerrors"
)

// DefaultEpoch 未配置 epoch 时使用的起点
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Config 生成器配置
//
//	generator:
//	  coordinator_addr: "127.0.0.1:7070"
//	  holder: "order-service-0"
//	  lease_ttl: 30s
//	  max_backward_drift: 10ms
//	  epoch: "2024-01-01T00:00:00Z"
//	  layout:
//	    timestamp_bits: 41
//	    worker_bits: 10
//	    sequence_bits: 12
type Config struct {
	// CoordinatorAddr 协调者 gRPC 地址，注入 LeaseClient 时可为空
	CoordinatorAddr string `mapstructure:"coordinator_addr"`

	// Holder 节点标签，只用于诊断，默认取主机名
	Holder string `mapstructure:"holder"`

	// PreferredWorkerID 期望的 workerId，例如重启前使用的值
	PreferredWorkerID *int64 `mapstructure:"preferred_worker_id"`

	// LeaseTTL 预期的租约时长，用于推导续约周期默认值，默认 30s。
	// 实际期限以协调者授予的 TTL 为准。
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`

	// RenewInterval 续约周期上限，默认 LeaseTTL/2；授予的 TTL 更短时取其一半
	RenewInterval time.Duration `mapstructure:"renew_interval"`

	// RenewTimeout 单次续约的超时，超时等同于租约失效，默认 min(3s, RenewInterval/2)
	RenewTimeout time.Duration `mapstructure:"renew_timeout"`

	// MaxBackwardDrift 容忍的时钟回拨量，0 取默认值 10ms，负数表示不容忍任何回拨
	MaxBackwardDrift time.Duration `mapstructure:"max_backward_drift"`

	// Layout 位布局，全零取默认 41/10/12
	Layout Layout `mapstructure:"layout"`

	// Epoch 时间戳起点，零值取 DefaultEpoch
	Epoch time.Time `mapstructure:"epoch"`

	// AcquireMaxAttempts 创建时获取租约的最大尝试次数，默认 5
	AcquireMaxAttempts uint `mapstructure:"acquire_max_attempts"`
	// AcquireInitialInterval 首次重试间隔，默认 200ms
	AcquireInitialInterval time.Duration `mapstructure:"acquire_initial_interval"`
	// AcquireMaxInterval 重试间隔上限，默认 5s
	AcquireMaxInterval time.Duration `mapstructure:"acquire_max_interval"`
}

func (c *Config) setDefaults() {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = c.LeaseTTL / 2
	}
	if c.RenewTimeout <= 0 {
		c.RenewTimeout = min(3*time.Second, c.RenewInterval/2)
	}
	if c.MaxBackwardDrift == 0 {
		c.MaxBackwardDrift = clock.DefaultMaxBackwardDrift
	}
	if c.Layout.isZero() {
		c.Layout = DefaultLayout()
	}
	if c.Epoch.IsZero() {
		c.Epoch = DefaultEpoch
	}
	if c.AcquireMaxAttempts == 0 {
		c.AcquireMaxAttempts = 5
	}
	if c.AcquireInitialInterval <= 0 {
		c.AcquireInitialInterval = 200 * time.Millisecond
	}
	if c.AcquireMaxInterval <= 0 {
		c.AcquireMaxInterval = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.RenewInterval >= c.LeaseTTL {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "renew_interval %s must be shorter than lease_ttl %s",
			c.RenewInterval, c.LeaseTTL)
	}
	if c.RenewTimeout > c.RenewInterval {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "renew_timeout %s exceeds renew_interval %s",
			c.RenewTimeout, c.RenewInterval)
	}
	if c.PreferredWorkerID != nil && (*c.PreferredWorkerID < 0 || *c.PreferredWorkerID > c.Layout.MaxWorkerID()) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "preferred_worker_id %d out of range [0, %d]",
			*c.PreferredWorkerID, c.Layout.MaxWorkerID())
	}
	return nil
}
