package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
log:
  level: info
store:
  driver: memory
  lease_ttl: 30s
generator:
  layout:
    timestamp_bits: 41
    worker_bits: 10
    sequence_bits: 12
`

type testAppConfig struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Store struct {
		Driver   string        `mapstructure:"driver"`
		LeaseTTL time.Duration `mapstructure:"lease_ttl"`
	} `mapstructure:"store"`
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newTestLoader(t *testing.T, dir string, opts ...Option) Loader {
	t.Helper()
	l, err := New(&Config{Name: "leaseflake", Paths: []string{dir}, EnvPrefix: "lftest"}, opts...)
	require.NoError(t, err)
	return l
}

func TestConfigDefaults(t *testing.T) {
	c := &Config{}
	c.setDefaults()
	assert.Equal(t, "config", c.Name)
	assert.Equal(t, []string{".", "./configs"}, c.Paths)
	assert.Equal(t, "yaml", c.FileType)
	assert.Equal(t, DefaultEnvPrefix, c.EnvPrefix)

	c = &Config{EnvPrefix: "abc"}
	c.setDefaults()
	assert.Equal(t, "ABC", c.EnvPrefix)
}

func TestLoad(t *testing.T) {
	t.Run("读取文件并反序列化", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "leaseflake.yaml", baseYAML)

		l := newTestLoader(t, dir)
		require.NoError(t, l.Load(context.Background()))

		var cfg testAppConfig
		require.NoError(t, l.Unmarshal(&cfg))
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, 30*time.Second, cfg.Store.LeaseTTL)

		var layout struct {
			SequenceBits int `mapstructure:"sequence_bits"`
		}
		require.NoError(t, l.UnmarshalKey("generator.layout", &layout))
		assert.Equal(t, 12, layout.SequenceBits)
	})

	t.Run("环境变量覆盖文件", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "leaseflake.yaml", baseYAML)
		t.Setenv("LFTEST_STORE_DRIVER", "redis")

		l := newTestLoader(t, dir)
		require.NoError(t, l.Load(context.Background()))
		assert.Equal(t, "redis", l.Get("store.driver"))

		var cfg testAppConfig
		require.NoError(t, l.Unmarshal(&cfg))
		assert.Equal(t, "redis", cfg.Store.Driver)
	})

	t.Run("叠加环境配置", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "leaseflake.yaml", baseYAML)
		writeFile(t, dir, "leaseflake.prod.yaml", "log:\n  level: warn\n")
		t.Setenv("LFTEST_ENV", "prod")

		l := newTestLoader(t, dir)
		require.NoError(t, l.Load(context.Background()))
		assert.Equal(t, "warn", l.Get("log.level"))
		assert.Equal(t, "memory", l.Get("store.driver"))
	})

	t.Run("没有文件时使用默认值", func(t *testing.T) {
		l := newTestLoader(t, t.TempDir(), WithDefault("store.driver", "memory"))
		require.NoError(t, l.Load(context.Background()))
		assert.Equal(t, "memory", l.Get("store.driver"))
	})

	t.Run("完全为空返回 ErrEmpty", func(t *testing.T) {
		l := newTestLoader(t, t.TempDir())
		assert.ErrorIs(t, l.Load(context.Background()), ErrEmpty)
	})

	t.Run("格式错误", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "leaseflake.yaml", "log: [unterminated\n")
		l := newTestLoader(t, dir)
		assert.Error(t, l.Load(context.Background()))
	})
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "leaseflake.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	_, err := l.Watch(context.Background(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "log.level")
	require.NoError(t, err)

	writeFile(t, dir, "leaseflake.yaml", baseYAML+"\n# touched\n")
	writeFile(t, dir, "leaseflake.yaml", "log:\n  level: debug\nstore:\n  driver: memory\n")

	select {
	case ev := <-ch:
		assert.Equal(t, "log.level", ev.Key)
		assert.Equal(t, "debug", ev.Value)
		assert.Equal(t, "info", ev.OldValue)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到配置变更事件")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
