package idgen

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/testkit"
	"github.com/ceyewan/leaseflake/xerrors"
)

// start 距 Unix 纪元 1000ms，配合 epoch=0 使用
var start = time.UnixMilli(1000)

// testClient 包装进程内的 coordinator.Service，可注入故障
type testClient struct {
	coordinator.API

	mu           sync.Mutex
	acquireErr   error
	renewErr     error
	acquireCalls int
	closed       int
}

func (c *testClient) Acquire(ctx context.Context, req coordinator.AcquireRequest) (lease.WorkerLease, error) {
	c.mu.Lock()
	c.acquireCalls++
	err := c.acquireErr
	c.mu.Unlock()
	if err != nil {
		return lease.WorkerLease{}, err
	}
	return c.API.Acquire(ctx, req)
}

func (c *testClient) Renew(ctx context.Context, workerID int64, token string) (time.Time, error) {
	c.mu.Lock()
	err := c.renewErr
	c.mu.Unlock()
	if err != nil {
		return time.Time{}, err
	}
	return c.API.Renew(ctx, workerID, token)
}

func (c *testClient) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *testClient) setRenewErr(err error) {
	c.mu.Lock()
	c.renewErr = err
	c.mu.Unlock()
}

func (c *testClient) stats() (acquires, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireCalls, c.closed
}

type fixture struct {
	clock  *clock.Fake
	svc    *coordinator.Service
	client *testClient
}

func newFixture(t *testing.T, workerBits int) *fixture {
	t.Helper()
	return newFixtureTTL(t, workerBits, 30*time.Second)
}

// newFixtureTTL 协调者使用指定的租约 TTL，生成器仍用默认配置
func newFixtureTTL(t *testing.T, workerBits int, ttl time.Duration) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewFake(start)}
	svc, err := coordinator.NewService(
		&coordinator.Config{LeaseTTL: ttl, WorkerBits: workerBits},
		lease.NewMemoryStore(),
		coordinator.WithClock(f.clock),
		coordinator.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	f.svc = svc
	f.client = &testClient{API: svc}
	return f
}

// newGenerator epoch 固定为 Unix 纪元，时钟与协调者共用
func (f *fixture) newGenerator(t *testing.T, cfg *Config, opts ...Option) *Generator {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.UnixMilli(0)
	}
	if cfg.Holder == "" {
		cfg.Holder = "node-test"
	}
	base := []Option{
		WithLeaseClient(f.client),
		WithClock(f.clock),
		WithLogger(testkit.NewLogger()),
	}
	g, err := New(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

// liveLeases 协调者上当前有效的租约，释放留下的墓碑不计入
func (f *fixture) liveLeases(t *testing.T) []lease.WorkerLease {
	t.Helper()
	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	var live []lease.WorkerLease
	for _, l := range all {
		if l.Live(f.clock.Now()) {
			live = append(live, l)
		}
	}
	return live
}

// hookClock 在 Sleep 前执行 onSleep，模拟等待期间发生的事情
type hookClock struct {
	*clock.Fake
	onSleep func()
}

func (c *hookClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.onSleep()
	}
	return c.Fake.Sleep(ctx, d)
}

func ptr(v int64) *int64 { return &v }

func TestNextScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(5)}, WithMeter(testkit.NewMeter(t)))
	require.Equal(t, int64(5), g.WorkerID())
	require.Equal(t, StateActive, g.State())

	t.Run("首个 ID", func(t *testing.T) {
		id, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000<<22|5<<12|0), id.Uint64())
	})

	t.Run("同一毫秒只差序列号", func(t *testing.T) {
		id, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000<<22|5<<12|1), id.Uint64())
		assert.Equal(t, Parts{Timestamp: 1000, WorkerID: 5, Sequence: 1}, g.Decompose(id))
	})

	t.Run("下一毫秒序列号归零", func(t *testing.T) {
		f.clock.Advance(time.Millisecond)
		s, err := g.NextString(ctx)
		require.NoError(t, err)
		id, err := Parse(g.Layout(), s)
		require.NoError(t, err)
		assert.Equal(t, Parts{Timestamp: 1001, WorkerID: 5, Sequence: 0}, g.Decompose(id))
	})
}

func TestSequenceOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, &Config{
		PreferredWorkerID: ptr(1),
		Layout:            Layout{TimestampBits: 41, WorkerBits: 10, SequenceBits: 2},
	})

	var got []Parts
	for i := 0; i < 5; i++ {
		id, err := g.Next(ctx)
		require.NoError(t, err)
		got = append(got, g.Decompose(id))
	}

	for i, want := range []int64{0, 1, 2, 3} {
		assert.Equal(t, int64(1000), got[i].Timestamp)
		assert.Equal(t, want, got[i].Sequence)
	}
	assert.Equal(t, int64(1001), got[4].Timestamp, "溢出后等到下一毫秒")
	assert.Equal(t, int64(0), got[4].Sequence)
	assert.Equal(t, []time.Duration{time.Millisecond}, f.clock.Sleeps())
}

func TestClockDrift(t *testing.T) {
	ctx := context.Background()

	t.Run("容忍范围内等待", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, nil)
		first, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Rewind(5 * time.Millisecond)
		id, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, id, first)
		assert.Equal(t, g.Decompose(first).Timestamp, g.Decompose(id).Timestamp, "等到上次的时间戳后继续")
		assert.Equal(t, int64(1), g.Decompose(id).Sequence)
		assert.Equal(t, []time.Duration{5 * time.Millisecond}, f.clock.Sleeps())
	})

	t.Run("超出容忍度拒绝且状态不变", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, nil)
		first, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Rewind(50 * time.Millisecond)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrClockDrift)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrClockDrift)
		assert.Equal(t, StateActive, g.State())

		f.clock.Advance(50 * time.Millisecond)
		id, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, g.Decompose(first).Timestamp, g.Decompose(id).Timestamp)
		assert.Equal(t, int64(1), g.Decompose(id).Sequence)
	})

	t.Run("可配置容忍度", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, &Config{MaxBackwardDrift: 100 * time.Millisecond})
		_, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Rewind(50 * time.Millisecond)
		_, err = g.Next(ctx)
		require.NoError(t, err)
	})
}

func TestRenewal(t *testing.T) {
	ctx := context.Background()

	t.Run("续约延长有效期", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, nil)
		before := g.Lease().ExpiresAt

		f.clock.Advance(15 * time.Second)
		g.tick(ctx)
		assert.True(t, g.Lease().ExpiresAt.After(before))
		assert.Equal(t, StateActive, g.State())
	})

	t.Run("超时进入降级后恢复", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(3)})

		f.client.setRenewErr(xerrors.Join(xerrors.ErrUnavailable, context.DeadlineExceeded))
		g.tick(ctx)
		assert.Equal(t, StateDegraded, g.State())
		_, err := g.Next(ctx)
		assert.ErrorIs(t, err, ErrDegraded)

		f.client.setRenewErr(nil)
		g.tick(ctx)
		assert.Equal(t, StateActive, g.State())
		assert.Equal(t, int64(3), g.WorkerID())
		_, err = g.Next(ctx)
		assert.NoError(t, err)
	})

	t.Run("租约被回收后重新获取", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(5)})
		before, err := g.Next(ctx)
		require.NoError(t, err)
		oldToken := g.Lease().HolderToken

		// 35s 没有续约，另一个节点接管了 workerId 5
		f.clock.Advance(35 * time.Second)
		other, err := f.svc.Acquire(ctx, coordinator.AcquireRequest{PreferredWorkerID: ptr(5), Holder: "node-b"})
		require.NoError(t, err)
		require.Equal(t, int64(5), other.WorkerID)

		g.tick(ctx)
		assert.Equal(t, StateDegraded, g.State())
		_, err = g.Next(ctx)
		assert.ErrorIs(t, err, ErrDegraded)

		_, err = f.svc.Renew(ctx, 5, oldToken)
		assert.ErrorIs(t, err, lease.ErrStale)

		g.tick(ctx)
		assert.Equal(t, StateActive, g.State())
		assert.Equal(t, int64(0), g.WorkerID(), "原 id 被占用时取最小空闲 id")
		assert.NotEqual(t, oldToken, g.Lease().HolderToken)

		after, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
		assert.Equal(t, int64(0), g.Decompose(after).WorkerID)
	})

	t.Run("同一毫秒换到更小的 id 仍然递增", func(t *testing.T) {
		f := newFixture(t, 10)
		g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(5)})
		before, err := g.Next(ctx)
		require.NoError(t, err)

		// 协调者判定失效，但槽位 5 在存储里仍是活的，只能拿到 0
		f.client.setRenewErr(lease.ErrStale)
		g.tick(ctx)
		require.Equal(t, StateDegraded, g.State())
		f.client.setRenewErr(nil)
		g.tick(ctx)
		require.Equal(t, StateActive, g.State())
		require.Equal(t, int64(0), g.WorkerID())

		after, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
		p := g.Decompose(after)
		assert.Equal(t, g.Decompose(before).Timestamp+1, p.Timestamp)
		assert.Equal(t, int64(0), p.Sequence)
	})
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("槽位耗尽不重试", func(t *testing.T) {
		f := newFixture(t, 1)
		for i := 0; i < 2; i++ {
			_, err := f.svc.Acquire(ctx, coordinator.AcquireRequest{Holder: "other"})
			require.NoError(t, err)
		}
		_, err := New(ctx, &Config{Epoch: time.UnixMilli(0)}, WithLeaseClient(f.client), WithClock(f.clock))
		require.ErrorIs(t, err, ErrLeaseExhausted)
		acquires, closed := f.client.stats()
		assert.Equal(t, 1, acquires)
		assert.Equal(t, 1, closed)
	})

	t.Run("协调者不可达", func(t *testing.T) {
		f := newFixture(t, 10)
		f.client.acquireErr = xerrors.Wrap(xerrors.ErrUnavailable, "connection refused")
		_, err := New(ctx, &Config{
			AcquireMaxAttempts:     3,
			AcquireInitialInterval: time.Millisecond,
			AcquireMaxInterval:     2 * time.Millisecond,
		}, WithLeaseClient(f.client), WithClock(f.clock))
		require.ErrorIs(t, err, ErrCoordinatorUnreachable)
		assert.ErrorIs(t, err, xerrors.ErrUnavailable)
		acquires, closed := f.client.stats()
		assert.Equal(t, 3, acquires)
		assert.Equal(t, 1, closed)
	})

	t.Run("布局非法时不联系协调者", func(t *testing.T) {
		f := newFixture(t, 10)
		_, err := New(ctx, &Config{Layout: Layout{TimestampBits: 42, WorkerBits: 10, SequenceBits: 12}},
			WithLeaseClient(f.client))
		require.ErrorIs(t, err, ErrInvalidLayout)
		acquires, _ := f.client.stats()
		assert.Zero(t, acquires)
	})

	t.Run("授予的 id 超出布局时释放", func(t *testing.T) {
		f := newFixture(t, 10)
		for i := 0; i < 4; i++ {
			_, err := f.svc.Acquire(ctx, coordinator.AcquireRequest{Holder: "other"})
			require.NoError(t, err)
		}
		_, err := New(ctx, &Config{
			Epoch:  time.UnixMilli(0),
			Layout: Layout{TimestampBits: 41, WorkerBits: 2, SequenceBits: 12},
		}, WithLeaseClient(f.client), WithClock(f.clock))
		require.ErrorIs(t, err, ErrInvalidLayout)

		all, err := f.svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4, "workerId 4 已释放")
	})

	t.Run("配置为空", func(t *testing.T) {
		_, err := New(ctx, nil)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("期望 id 超出布局", func(t *testing.T) {
		f := newFixture(t, 10)
		_, err := New(ctx, &Config{PreferredWorkerID: ptr(1024)}, WithLeaseClient(f.client))
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, nil)

	require.NoError(t, g.Close(ctx))
	require.NoError(t, g.Close(ctx), "重复关闭")
	assert.Equal(t, StateClosed, g.State())

	_, err := g.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Empty(t, f.liveLeases(t), "关闭时释放租约")

	_, closed := f.client.stats()
	assert.Equal(t, 1, closed)
}

func TestCloseWhileDegraded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, nil)

	f.client.setRenewErr(xerrors.ErrUnavailable)
	g.tick(ctx)
	require.Equal(t, StateDegraded, g.State())

	require.NoError(t, g.Close(ctx))
	assert.Equal(t, StateClosed, g.State())
	assert.Empty(t, f.liveLeases(t))
}

func TestConcurrentNext(t *testing.T) {
	const (
		workers = 8
		perG    = 2000
	)
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, &Config{Epoch: DefaultEpoch}, WithClock(clock.System()))

	results := make([][]ID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]ID, 0, perG)
			for i := 0; i < perG; i++ {
				id, err := g.Next(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				ids = append(ids, id)
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[ID]struct{}, workers*perG)
	for _, ids := range results {
		require.Len(t, ids, perG)
		for i, id := range ids {
			if i > 0 {
				require.Greater(t, id, ids[i-1], "单个调用方看到的 ID 严格递增")
			}
			_, dup := seen[id]
			require.False(t, dup, "重复 ID %d", id)
			seen[id] = struct{}{}

			p := g.Decompose(id)
			again, err := g.Layout().Compose(p.Timestamp, p.WorkerID, p.Sequence)
			require.NoError(t, err)
			require.Equal(t, id, again)
		}
	}
}

func TestGeneratorOverGRPC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	lis := bufconn.Listen(1 << 20)
	srv, err := coordinator.NewServer(f.svc, coordinator.WithServerLogger(testkit.NewLogger()))
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.GracefulStop(stopCtx)
	})

	g, err := New(ctx, &Config{
		CoordinatorAddr:   "passthrough:///bufnet",
		PreferredWorkerID: ptr(7),
		Epoch:             time.UnixMilli(0),
	},
		WithClock(f.clock),
		WithLogger(testkit.NewLogger()),
		WithClientOptions(
			coordinator.WithBreaker(nil),
			coordinator.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			})),
		))
	require.NoError(t, err)

	id, err := g.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000<<22|7<<12), id.Uint64())

	f.clock.Advance(10 * time.Second)
	g.tick(ctx)
	assert.Equal(t, StateActive, g.State())

	require.NoError(t, g.Close(ctx))
	assert.Empty(t, f.liveLeases(t))
}

func TestConfigDefaults(t *testing.T) {
	c := &Config{}
	c.setDefaults()
	require.NoError(t, c.validate())
	assert.Equal(t, 30*time.Second, c.LeaseTTL)
	assert.Equal(t, 15*time.Second, c.RenewInterval)
	assert.Equal(t, 3*time.Second, c.RenewTimeout)
	assert.Equal(t, clock.DefaultMaxBackwardDrift, c.MaxBackwardDrift)
	assert.Equal(t, DefaultLayout(), c.Layout)
	assert.Equal(t, DefaultEpoch, c.Epoch)

	short := &Config{LeaseTTL: 2 * time.Second}
	short.setDefaults()
	assert.Equal(t, time.Second, short.RenewInterval)
	assert.Equal(t, 500*time.Millisecond, short.RenewTimeout)

	bad := &Config{LeaseTTL: time.Second, RenewInterval: 2 * time.Second}
	bad.setDefaults()
	assert.ErrorIs(t, bad.validate(), xerrors.ErrInvalidInput)
}

func TestLocalLeaseDeadline(t *testing.T) {
	ctx := context.Background()

	t.Run("协调者 TTL 短于续约周期时本地到期即降级", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		a := f.newGenerator(t, &Config{PreferredWorkerID: ptr(5)})
		first, err := a.Next(ctx)
		require.NoError(t, err)

		// 没有续约，协调者侧的租约在 5s 后过期
		f.clock.Advance(6 * time.Second)
		_, err = a.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)
		assert.Equal(t, StateDegraded, a.State())

		b, err := New(ctx, &Config{PreferredWorkerID: ptr(5), Epoch: time.UnixMilli(0), Holder: "node-b"},
			WithLeaseClient(&testClient{API: f.svc}), WithClock(f.clock), WithLogger(testkit.NewLogger()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close(context.Background()) })
		require.Equal(t, int64(5), b.WorkerID())

		seen := map[ID]struct{}{first: {}}
		for i := 0; i < 100; i++ {
			id, err := b.Next(ctx)
			require.NoError(t, err)
			_, dup := seen[id]
			require.False(t, dup)
			seen[id] = struct{}{}

			_, err = a.Next(ctx)
			require.ErrorIs(t, err, ErrDegraded)
		}
	})

	t.Run("期限前可发号到期后拒绝", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		g := f.newGenerator(t, nil)

		// 期限为 5s 减去 10% 余量
		f.clock.Advance(4499 * time.Millisecond)
		_, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Advance(time.Millisecond)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)
	})

	t.Run("续约以发出时间刷新期限", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		g := f.newGenerator(t, nil)

		f.clock.Advance(2 * time.Second)
		g.tick(ctx)
		require.Equal(t, StateActive, g.State())

		// 续约于 2s 发出，新期限为 2s+4.5s
		f.clock.Advance(4 * time.Second)
		_, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Advance(500 * time.Millisecond)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)
	})

	t.Run("降级后重新获取恢复", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(2)})
		before, err := g.Next(ctx)
		require.NoError(t, err)

		f.clock.Advance(6 * time.Second)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)

		g.tick(ctx)
		assert.Equal(t, StateDegraded, g.State(), "协调者判定租约已失效")
		g.tick(ctx)
		require.Equal(t, StateActive, g.State())

		after, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
		assert.Equal(t, int64(2), g.Decompose(after).WorkerID)
	})

	t.Run("续约周期取授予 TTL 的一半", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		g := f.newGenerator(t, nil)
		interval, timeout := g.schedule()
		assert.Equal(t, 2500*time.Millisecond, interval)
		assert.Equal(t, 1250*time.Millisecond, timeout)

		long := newFixture(t, 10)
		g = long.newGenerator(t, &Config{RenewInterval: 10 * time.Second})
		interval, timeout = g.schedule()
		assert.Equal(t, 10*time.Second, interval, "配置值更小时用配置值")
		assert.Equal(t, 3*time.Second, timeout)
	})
}

func TestNextRechecksAfterWait(t *testing.T) {
	ctx := context.Background()

	t.Run("回拨等待期间降级", func(t *testing.T) {
		f := newFixture(t, 10)
		hc := &hookClock{Fake: f.clock}
		g := f.newGenerator(t, nil, WithClock(hc))
		_, err := g.Next(ctx)
		require.NoError(t, err)

		hc.onSleep = func() { g.transition(ctx, StateActive, StateDegraded) }
		f.clock.Rewind(5 * time.Millisecond)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)
	})

	t.Run("等待期间越过本地期限", func(t *testing.T) {
		f := newFixtureTTL(t, 10, 5*time.Second)
		hc := &hookClock{Fake: f.clock}
		g := f.newGenerator(t, nil, WithClock(hc))
		f.clock.Advance(4 * time.Second)
		_, err := g.Next(ctx)
		require.NoError(t, err)

		hc.onSleep = func() { f.clock.Advance(time.Second) }
		f.clock.Rewind(5 * time.Millisecond)
		_, err = g.Next(ctx)
		require.ErrorIs(t, err, ErrDegraded)
		assert.Equal(t, StateDegraded, g.State())
	})

	t.Run("序列号溢出等待期间关闭", func(t *testing.T) {
		f := newFixture(t, 10)
		hc := &hookClock{Fake: f.clock}
		g := f.newGenerator(t, &Config{Layout: Layout{TimestampBits: 41, WorkerBits: 10, SequenceBits: 1}}, WithClock(hc))
		for i := 0; i < 2; i++ {
			_, err := g.Next(ctx)
			require.NoError(t, err)
		}

		hc.onSleep = func() { g.state.Store(int32(StateClosed)) }
		_, err := g.Next(ctx)
		require.ErrorIs(t, err, ErrClosed)
	})
}

func TestReacquireDoesNotWaitForNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	g := f.newGenerator(t, &Config{PreferredWorkerID: ptr(5)})
	before, err := g.Next(ctx)
	require.NoError(t, err)

	f.client.setRenewErr(lease.ErrStale)
	g.tick(ctx)
	require.Equal(t, StateDegraded, g.State())
	f.client.setRenewErr(nil)

	// 模拟 Next 正持有 idMu 等待时钟
	g.idMu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.tick(ctx)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		g.idMu.Unlock()
		t.Fatal("重新获取被发号锁阻塞")
	}
	assert.Equal(t, StateActive, g.State())
	assert.Equal(t, int64(0), g.Lease().WorkerID, "槽位 5 仍然存活，只能拿到 0")
	g.idMu.Unlock()

	t.Run("下一次发号换入新的 workerId", func(t *testing.T) {
		after, err := g.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
		p := g.Decompose(after)
		assert.Equal(t, int64(0), p.WorkerID)
		assert.Equal(t, g.Decompose(before).Timestamp+1, p.Timestamp)
		assert.Equal(t, int64(0), g.WorkerID())
	})
}
