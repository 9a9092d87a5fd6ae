package ratelimit

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

func newStandaloneForTest(t *testing.T) Limiter {
	t.Helper()
	l, err := New(&Config{Enabled: true, Mode: ModeStandalone}, nil, WithMeter(metrics.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	l, err := New(&Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, discard{}, l)

	_, err = New(&Config{Enabled: true, Mode: ModeDistributed}, nil)
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = New(&Config{Enabled: true, Mode: "cluster"}, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestStandaloneAllow(t *testing.T) {
	ctx := context.Background()
	l := newStandaloneForTest(t)
	limit := Limit{Rate: 1, Burst: 3}

	t.Run("突发耗尽后拒绝", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := l.Allow(ctx, "node-a", limit)
			require.NoError(t, err)
			assert.True(t, ok, "第 %d 次应放行", i)
		}
		ok, err := l.Allow(ctx, "node-a", limit)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("key 之间互不影响", func(t *testing.T) {
		ok, err := l.Allow(ctx, "node-b", limit)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("参数校验", func(t *testing.T) {
		_, err := l.Allow(ctx, "", limit)
		assert.ErrorIs(t, err, ErrKeyEmpty)
		_, err = l.Allow(ctx, "k", Limit{})
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})
}

func TestStandaloneBuckets(t *testing.T) {
	c := DefaultConfig()
	l, err := newStandalone(c, newOptions(nil))
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	ctx := context.Background()

	t.Run("规则变化视为新桶", func(t *testing.T) {
		ok, err := l.Allow(ctx, "k", Limit{Rate: 0.001, Burst: 1})
		require.NoError(t, err)
		assert.True(t, ok)
		ok, _ = l.Allow(ctx, "k", Limit{Rate: 0.001, Burst: 1})
		assert.False(t, ok)

		ok, err = l.Allow(ctx, "k", Limit{Rate: 0.001, Burst: 2})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("同一 key 复用同一个桶", func(t *testing.T) {
		a := l.bucket("x", Limit{Rate: 1, Burst: 1})
		b := l.bucket("x", Limit{Rate: 1, Burst: 1})
		assert.Same(t, a, b)
	})

	assert.NoError(t, l.Close(), "重复 Close 安全")
}

func TestPeerKey(t *testing.T) {
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5555}})
	assert.Equal(t, "/svc/Acquire|10.0.0.7", PeerKey(ctx, "/svc/Acquire"))
	assert.Equal(t, "/svc/Acquire", PeerKey(context.Background(), "/svc/Acquire"))
}

func TestUnaryServerInterceptor(t *testing.T) {
	l := newStandaloneForTest(t)
	interceptor := UnaryServerInterceptor(l, Limit{Rate: 0.001, Burst: 1}, nil, "/svc/Acquire")
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Acquire"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Acquire"}, handler)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	for i := 0; i < 3; i++ {
		_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Renew"}, handler)
		assert.NoError(t, err, "未列出的方法不限流")
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newStandaloneForTest(t)

	r := gin.New()
	r.Use(GinMiddleware(l, Limit{Rate: 0.001, Burst: 2}))
	r.POST("/v1/leases/acquire", func(c *gin.Context) { c.Status(http.StatusOK) })

	codesSeen := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/leases/acquire", nil))
		codesSeen = append(codesSeen, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codesSeen)
}

func TestDiscard(t *testing.T) {
	ok, err := Discard().Allow(context.Background(), "", Limit{})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, Discard().Close())
}
