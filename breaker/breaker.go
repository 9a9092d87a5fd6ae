// Package breaker 为生成器访问协调者的 gRPC 调用提供熔断保护。
//
// 协调者不可达时，生成器的续约与重新获取会快速失败，而不是在每个
// 续约周期上堆积超时。熔断按 key 隔离，gRPC 拦截器默认以连接目标地址为 key。
//
// 业务错误（租约耗尽、租约失效、参数错误）代表协调者正常应答，不计入失败。
package breaker

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn，熔断打开时返回 ErrOpenState
	Execute(ctx context.Context, key string, fn func() error) error

	// State 返回 key 当前状态，从未使用过的 key 视为 StateClosed
	State(key string) State

	// UnaryClientInterceptor gRPC 一元调用拦截器
	UnaryClientInterceptor() grpc.UnaryClientInterceptor
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断配置
//
//	breaker:
//	  max_requests: 1
//	  interval: 60s
//	  timeout: 10s
//	  failure_ratio: 0.6
//	  minimum_requests: 5
type Config struct {
	// MaxRequests 半开状态允许通过的探测请求数
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Interval 闭合状态下清空计数的周期，0 表示不清空
	Interval time.Duration `mapstructure:"interval"`
	// Timeout 打开状态持续多久后转为半开
	Timeout time.Duration `mapstructure:"timeout"`
	// FailureRatio 失败率阈值
	FailureRatio float64 `mapstructure:"failure_ratio"`
	// MinimumRequests 计算失败率前的最少请求数
	MinimumRequests uint32 `mapstructure:"minimum_requests"`
}

// DefaultConfig 适合续约周期为秒级的默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxRequests:     1,
		Interval:        time.Minute,
		Timeout:         10 * time.Second,
		FailureRatio:    0.6,
		MinimumRequests: 5,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = d.FailureRatio
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = d.MinimumRequests
	}
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()

	o := newOptions(opts)
	return newBreaker(&c, o), nil
}
