// Package config 基于 Viper 加载 leaseflake 进程配置。
//
// 来源优先级：环境变量 > .env > <name>.<env>.yaml > <name>.yaml。
// 环境由 <PREFIX>_ENV 选择，例如 LEASEFLAKE_ENV=prod 会叠加 config.prod.yaml。
//
//	loader, err := config.New(&config.Config{Name: "coordinator", Paths: []string{"./configs"}})
//	if err := loader.Load(ctx); err != nil { ... }
//	var cfg AppConfig
//	_ = loader.Unmarshal(&cfg)
//
//	ch, _ := loader.Watch(ctx, "log.level")
//	for ev := range ch { ... }
package config

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/leaseflake/clog"
)

// DefaultEnvPrefix 环境变量前缀，LEASEFLAKE_STORE_DRIVER 对应 store.driver
const DefaultEnvPrefix = "LEASEFLAKE"

// Loader 配置加载器
type Loader interface {
	// Load 读取所有来源并开始监听配置文件
	Load(ctx context.Context) error

	Get(key string) any
	Unmarshal(v any) error
	UnmarshalKey(key string, v any) error

	// Watch 订阅 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Timestamp time.Time
}

// Config 加载器配置
type Config struct {
	Name      string   // 配置文件名（不含扩展名），默认 config
	Paths     []string // 搜索路径，默认 "." 与 "./configs"
	FileType  string   // 默认 yaml
	EnvPrefix string   // 默认 LEASEFLAKE
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if len(c.Paths) == 0 {
		c.Paths = []string{".", "./configs"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultEnvPrefix
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// Option 加载器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	defaults map[string]any
}

// WithLogger 注入日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// WithDefault 注册默认值，优先级低于所有配置来源
func WithDefault(key string, value any) Option {
	return func(o *options) {
		o.defaults[key] = value
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()

	o := &options{logger: clog.Discard(), defaults: make(map[string]any)}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(&c, o), nil
}
