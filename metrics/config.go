package metrics

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "leaseflake-coordinator"
//	  version: "v0.1.0"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 写入 Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 写入 Resource 的 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 且 Path 非空时启动 Prometheus HTTP 服务
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`

	// Runtime 是否采集 Go runtime 指标（GC、goroutine、内存）
	Runtime bool `mapstructure:"runtime"`
}

// NewDevDefaultConfig 开发环境配置：启用采集但不监听端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
	}
}

// NewProdDefaultConfig 生产环境配置：9090 端口暴露 /metrics 并采集 runtime 指标
func NewProdDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Port:        9090,
		Path:        "/metrics",
		Runtime:     true,
	}
}
