package xerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"), "nil 错误应返回 nil")
	assert.NoError(t, Wrapf(nil, "worker %d", 5))

	wrapped := Wrapf(ErrUnavailable, "renew worker id %d", 5)
	assert.Equal(t, "renew worker id 5: unavailable", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrUnavailable)
}

func TestCodes(t *testing.T) {
	stale := WithCode(New("lease: stale or unknown lease"), "LEASE_STALE")
	assert.NoError(t, WithCode(nil, "LEASE_STALE"))

	t.Run("错误码与文本", func(t *testing.T) {
		assert.Equal(t, "[LEASE_STALE] lease: stale or unknown lease", stale.Error())
		assert.Equal(t, "LEASE_STALE", GetCode(stale))
		assert.Equal(t, "[EMPTY]", (&CodedError{Code: "EMPTY"}).Error())
	})

	t.Run("包装后仍可提取", func(t *testing.T) {
		outer := Wrapf(stale, "renew worker id %d", 3)
		assert.Equal(t, "LEASE_STALE", GetCode(outer))
		assert.True(t, HasCode(outer, "LEASE_STALE"))
		assert.ErrorIs(t, outer, stale)
	})

	t.Run("嵌套错误码", func(t *testing.T) {
		nested := WithCode(Wrap(stale, "http"), "HTTP_409")
		assert.Equal(t, "HTTP_409", GetCode(nested), "取最外层")
		assert.True(t, HasCode(nested, "LEASE_STALE"))
		assert.False(t, HasCode(nested, "LEASE_EXHAUSTED"))
	})

	t.Run("无错误码", func(t *testing.T) {
		assert.Empty(t, GetCode(New("plain")))
		assert.False(t, HasCode(nil, "LEASE_STALE"))
	})
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"业务判定", Wrap(WithCode(New("exhausted"), "LEASE_EXHAUSTED"), "acquire"), true},
		{"非法参数", Wrapf(ErrInvalidInput, "worker id %d out of range", 9999), true},
		{"不可用", Join(ErrUnavailable, ErrTimeout), false},
		{"截止时间", Wrap(context.DeadlineExceeded, "renew"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestMust(t *testing.T) {
	assert.Equal(t, 42, Must(42, nil))
	assert.Panics(t, func() { Must(0, errors.New("boom")) })
}

func TestCollector(t *testing.T) {
	t.Run("空", func(t *testing.T) {
		var c Collector
		c.Collect(nil)
		assert.NoError(t, c.Err())
		assert.Zero(t, c.Len())
	})

	t.Run("单个错误原样返回", func(t *testing.T) {
		var c Collector
		first := errors.New("close redis")
		c.Collect(first)
		assert.Same(t, first, c.Err())
	})

	t.Run("多个错误全部保留", func(t *testing.T) {
		var c Collector
		c.Collect(Wrap(ErrTimeout, "close http"))
		c.Collect(nil)
		c.Collect(Wrap(ErrUnavailable, "close etcd"))
		require.Equal(t, 2, c.Len())
		err := c.Err()
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, "close http: timeout\nclose etcd: unavailable", err.Error())
	})
}
