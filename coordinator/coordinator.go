// Package coordinator 实现 workerId 租约协调者。
//
// Service 在 lease.Store 之上实现获取、续约、释放三种操作：
//
//   - Acquire 优先授予请求中的 workerId，否则授予最小的空闲 workerId；
//     空闲指槽位不存在或租约已过期，过期租约被静默回收
//   - Renew 持有者凭 token 延长有效期
//   - Release 持有者主动归还
//
// Server 通过 gRPC（msgpack 编码）暴露 Service，HTTPHandler 提供同语义的
// JSON 接口，Client 是生成器节点使用的 gRPC 客户端。Service 与 Client
// 都实现 API，生成器不区分进程内与远程协调者。
package coordinator

import (
	"context"
	"time"

	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/xerrors"
)

// API 协调者对外语义
type API interface {
	Acquire(ctx context.Context, req AcquireRequest) (lease.WorkerLease, error)
	Renew(ctx context.Context, workerID int64, token string) (time.Time, error)
	Release(ctx context.Context, workerID int64, token string) error
	List(ctx context.Context) ([]lease.WorkerLease, error)
}

// AcquireRequest 获取租约请求
type AcquireRequest struct {
	// PreferredWorkerID 期望的 workerId，空闲时优先授予
	PreferredWorkerID *int64 `msgpack:"preferred_worker_id,omitempty" json:"preferred_worker_id,omitempty"`
	// Holder 节点标签，只用于诊断
	Holder string `msgpack:"holder" json:"holder"`
}

// Config 协调者配置
//
//	coordinator:
//	  lease_ttl: 30s
//	  worker_bits: 10
//	  grpc_addr: ":7070"
//	  http_addr: ":7071"
type Config struct {
	// LeaseTTL 每次授予或续约后的有效期，默认 30s
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`

	// WorkerBits workerId 位宽，可分配范围为 [0, 2^WorkerBits)，默认 10
	WorkerBits int `mapstructure:"worker_bits"`

	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`

	// HTTPAuthSecret 非空时 HTTP 租约接口要求 HS256 Bearer Token
	HTTPAuthSecret string `mapstructure:"http_auth_secret"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.WorkerBits <= 0 {
		c.WorkerBits = 10
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = ":7070"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":7071"
	}
}

func (c *Config) validate() error {
	if c.WorkerBits > 22 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "worker_bits %d too large", c.WorkerBits)
	}
	if c.LeaseTTL < 10*time.Millisecond {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "lease_ttl %s too short", c.LeaseTTL)
	}
	return nil
}

// MaxWorkerID 可分配的最大 workerId
func (c *Config) MaxWorkerID() int64 {
	return int64(1)<<c.WorkerBits - 1
}
