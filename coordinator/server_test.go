package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/testkit"
	"github.com/ceyewan/leaseflake/xerrors"
)

// startBufconn 在内存监听上启动 Server，返回已连接的 Client
func startBufconn(t *testing.T, api API, serverOpts ...ServerOption) *Client {
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(api, append([]ServerOption{WithServerLogger(testkit.NewLogger())}, serverOpts...)...)
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.GracefulStop(ctx)
	})

	client, err := Dial(context.Background(), "passthrough:///bufnet",
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
		WithWaitReady(),
		WithBreaker(nil),
		WithClientLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &Config{WorkerBits: 1})
	client := startBufconn(t, f.svc, WithServerMeter(testkit.NewMeter(t)))

	a, err := client.Acquire(ctx, AcquireRequest{PreferredWorkerID: ptr(1), Holder: "node-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.WorkerID)
	assert.Equal(t, uint64(1), a.Version)
	assert.Equal(t, "node-a", a.Holder)
	assert.True(t, a.ExpiresAt.Equal(start.Add(30*time.Second)))

	f.clock.Advance(5 * time.Second)
	expiresAt, err := client.Renew(ctx, 1, a.HolderToken)
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(start.Add(35*time.Second)))

	all, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].HolderToken, "列表不暴露令牌")
	assert.Equal(t, "node-a", all[0].Holder)

	require.NoError(t, client.Release(ctx, 1, a.HolderToken))
}

func TestGRPCErrorMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &Config{WorkerBits: 1})
	client := startBufconn(t, f.svc)

	for i := 0; i < 2; i++ {
		_, err := client.Acquire(ctx, AcquireRequest{})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"耗尽", func() error { _, err := client.Acquire(ctx, AcquireRequest{}); return err }, lease.ErrExhausted},
		{"失效令牌", func() error { _, err := client.Renew(ctx, 0, "obsolete"); return err }, lease.ErrStale},
		{"释放失效令牌", func() error { return client.Release(ctx, 1, "obsolete") }, lease.ErrStale},
		{"越界", func() error { _, err := client.Renew(ctx, 99, "t"); return err }, xerrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
}

func TestGRPCAcquireRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	limiter, err := ratelimit.New(&ratelimit.Config{Enabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	client := startBufconn(t, f.svc, WithAcquireRateLimit(limiter, ratelimit.Limit{Rate: 0.001, Burst: 1}))

	_, err = client.Acquire(ctx, AcquireRequest{})
	require.NoError(t, err)
	_, err = client.Acquire(ctx, AcquireRequest{})
	assert.ErrorIs(t, err, xerrors.ErrUnavailable)
	assert.NotErrorIs(t, err, lease.ErrExhausted)

	all, err := client.List(ctx)
	require.NoError(t, err, "其他方法不受限")
	assert.Len(t, all, 1)
}

func TestDialUnreachable(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, "passthrough:///closed",
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
		WithCallTimeout(200*time.Millisecond),
		WithWaitReady())
	assert.ErrorIs(t, err, xerrors.ErrUnavailable)

	_, err = Dial(ctx, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"耗尽", xerrors.Wrap(lease.ErrExhausted, "x"), codes.ResourceExhausted},
		{"失效", lease.ErrStale, codes.FailedPrecondition},
		{"参数", xerrors.ErrInvalidInput, codes.InvalidArgument},
		{"超时", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"存储故障", xerrors.New("redis down"), codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}
