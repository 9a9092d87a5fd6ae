package events

import "github.com/ceyewan/leaseflake/xerrors"

// Driver 事件后端
type Driver string

const (
	DriverNoop  Driver = "noop"
	DriverNATS  Driver = "nats"
	DriverKafka Driver = "kafka"
)

// DefaultPrefix 默认 subject 前缀
const DefaultPrefix = "leaseflake.lease"

// Config 事件发布配置
//
//	events:
//	  driver: nats
//	  prefix: leaseflake.lease
type Config struct {
	Driver Driver `mapstructure:"driver"`
	Prefix string `mapstructure:"prefix"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverNoop
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverNoop, DriverNATS, DriverKafka:
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported events driver %q", c.Driver)
	}
}
