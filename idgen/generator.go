// Package idgen 基于租约的 snowflake 生成器。
//
// 每个 Generator 在创建时向协调者申请一个 workerId 租约，之后在进程内
// 发号，不再访问网络；后台按授予 TTL 的一半续约。续约失败或本地期限到达后
// 进入 Degraded，在所有权重新确认之前拒绝发号，保证同一 workerId 不会被
// 两个节点同时使用。
//
// 本地期限以发出请求时的本地时间为起点，加上授予的 TTL 再扣掉十分之一的
// 余量，不依赖协调者与本机的时钟对齐。
//
// 基本用法：
//
//	gen, err := idgen.New(ctx, &idgen.Config{CoordinatorAddr: "127.0.0.1:7070"},
//	    idgen.WithLogger(logger), idgen.WithMeter(meter))
//	if err != nil {
//	    return err
//	}
//	defer gen.Close(context.Background())
//
//	id, err := gen.Next(ctx)
package idgen

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

// State 生成器状态
type State int32

const (
	StateInit State = iota
	StateLeasing
	StateActive
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLeasing:
		return "leasing"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Generator 持有一个 workerId 租约的 ID 生成器，可并发调用
type Generator struct {
	cfg     Config
	layout  Layout
	clock   clock.Clock
	guard   *clock.Guard
	client  LeaseClient
	logger  clog.Logger
	metrics *generatorMetrics

	state atomic.Int32

	// idMu 保护发号状态
	idMu          sync.Mutex
	workerID      int64
	lastTimestamp int64
	sequence      int64

	// pendingWorker 重新获取到的 workerId，由 Next 在持有 idMu 时换入，-1 表示没有
	pendingWorker atomic.Int64
	// deadline 本地时钟下租约的安全期限（UnixNano），Next 过了它就降级
	deadline atomic.Int64

	// leaseMu 保护租约信息，只被续约协程和诊断接口使用
	leaseMu  sync.Mutex
	lease    lease.WorkerLease
	grantTTL time.Duration
	lost     bool

	cancel    context.CancelFunc
	doneCh    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New 校验布局、获取租约并启动续约协程。
//
// 所有槽位被占用时返回 ErrLeaseExhausted 且不重试；协调者不可达时按指数退避重试，
// 耗尽后返回 ErrCoordinatorUnreachable。失败时关闭已建立的连接。
func New(ctx context.Context, cfg *Config, opts ...Option) (*Generator, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "idgen config is nil")
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Holder == "" {
		c.Holder, _ = os.Hostname()
	}

	o := newOptions(opts)
	gm, err := newGeneratorMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		clientOpts := append([]coordinator.ClientOption{
			coordinator.WithClientLogger(o.logger),
			coordinator.WithClientMeter(o.meter),
		}, o.clientOpts...)
		dialed, err := coordinator.Dial(ctx, c.CoordinatorAddr, clientOpts...)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Join(ErrCoordinatorUnreachable, err), "dial coordinator")
		}
		client = dialed
	}

	g := &Generator{
		cfg:           c,
		layout:        c.Layout,
		clock:         o.clock,
		guard:         clock.NewGuard(o.clock, c.Epoch, c.MaxBackwardDrift),
		client:        client,
		logger:        o.logger,
		metrics:       gm,
		lastTimestamp: -1,
		doneCh:        make(chan struct{}),
	}
	g.pendingWorker.Store(-1)
	g.setState(ctx, StateLeasing)

	l, sentAt, err := g.acquire(ctx)
	if err != nil {
		g.state.Store(int32(StateClosed))
		_ = client.Close()
		return nil, err
	}
	g.workerID = l.WorkerID
	g.lease = l
	g.grantTTL = l.ExpiresAt.Sub(l.GrantedAt)
	g.extendDeadline(sentAt, g.grantTTL)
	g.setState(ctx, StateActive)

	interval, _ := g.schedule()
	g.logger.Info("generator started",
		clog.Int64("worker_id", l.WorkerID),
		clog.String("holder", c.Holder),
		clog.Time("expires_at", l.ExpiresAt),
		clog.Duration("granted_ttl", g.grantTTL),
		clog.Duration("renew_interval", interval))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	go g.renewLoop(loopCtx)
	return g, nil
}

// acquire 带退避地获取租约；槽位耗尽等业务判定与参数错误不重试。sentAt 为成功那次请求发出时的本地时间。
func (g *Generator) acquire(ctx context.Context) (l lease.WorkerLease, sentAt time.Time, err error) {
	req := coordinator.AcquireRequest{PreferredWorkerID: g.cfg.PreferredWorkerID, Holder: g.cfg.Holder}
	attempts := 0
	op := func() (lease.WorkerLease, error) {
		attempts++
		sentAt = g.clock.Now()
		l, err := g.client.Acquire(ctx, req)
		if err != nil {
			if xerrors.IsPermanent(err) {
				return l, backoff.Permanent(err)
			}
			return l, err
		}
		return l, nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     g.cfg.AcquireInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         g.cfg.AcquireMaxInterval,
	}
	l, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(g.cfg.AcquireMaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.WarnContext(ctx, "acquire lease failed, retrying",
				clog.Error(err), clog.Duration("backoff", next))
		}),
	)
	switch {
	case err == nil:
	case xerrors.Is(err, lease.ErrExhausted):
		return lease.WorkerLease{}, sentAt, xerrors.Wrapf(err, "acquire lease for %s", g.cfg.Holder)
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		return lease.WorkerLease{}, sentAt, err
	default:
		return lease.WorkerLease{}, sentAt, xerrors.Wrapf(xerrors.Join(ErrCoordinatorUnreachable, err),
			"acquire lease after %d attempts", attempts)
	}

	if l.WorkerID < 0 || l.WorkerID > g.layout.MaxWorkerID() {
		g.releaseLease(ctx, l)
		return lease.WorkerLease{}, sentAt, xerrors.Wrapf(ErrInvalidLayout,
			"granted worker id %d does not fit %d worker bits", l.WorkerID, g.layout.WorkerBits)
	}
	return l, sentAt, nil
}

// Next 生成下一个 ID。
//
// 时钟小幅回拨时阻塞等待，超过容忍度返回 ErrClockDrift 且不改变状态；
// Degraded 或本地租约期限已过时返回 ErrDegraded，关闭后返回 ErrClosed。
// 等待之后、组装 ID 之前会再检查一次状态与期限。
func (g *Generator) Next(ctx context.Context) (ID, error) {
	if err := g.admit(ctx); err != nil {
		return 0, err
	}

	g.idMu.Lock()
	defer g.idMu.Unlock()

	for {
		if err := g.admit(ctx); err != nil {
			return 0, err
		}
		g.swapPendingWorker()

		now, d := g.guard.CheckAdvance(g.lastTimestamp)
		switch d.Action {
		case clock.Reject:
			g.metrics.drift.Inc(ctx, metrics.L(metrics.LabelOutcome, "rejected"))
			g.logger.WarnContext(ctx, "clock moved backwards beyond tolerance",
				clog.Duration("drift", d.Drift),
				clog.Duration("max_drift", g.guard.MaxBackwardDrift()))
			return 0, xerrors.Wrapf(ErrClockDrift, "drift %s exceeds %s", d.Drift, g.guard.MaxBackwardDrift())
		case clock.WaitUntil:
			g.metrics.drift.Inc(ctx, metrics.L(metrics.LabelOutcome, "waited"))
			if _, err := g.guard.WaitUntil(ctx, d.Until); err != nil {
				return 0, err
			}
			now = d.Until
		}

		if now < 0 || now > g.layout.MaxTimestamp() {
			return 0, xerrors.Wrapf(ErrInvalidLayout, "timestamp %d outside [0, %d], check epoch", now, g.layout.MaxTimestamp())
		}

		// 等待期间租约可能已失效或已换号，从这里到组装 ID 不再阻塞
		if err := g.admit(ctx); err != nil {
			return 0, err
		}
		if g.pendingWorker.Load() >= 0 {
			continue
		}

		if now == g.lastTimestamp {
			if g.sequence >= g.layout.MaxSequence() {
				g.metrics.overflow.Inc(ctx)
				if _, err := g.guard.WaitNext(ctx, g.lastTimestamp); err != nil {
					return 0, err
				}
				continue
			}
			g.sequence++
		} else {
			g.sequence = 0
		}
		g.lastTimestamp = now

		g.metrics.generated.Inc(ctx)
		return g.layout.pack(now, g.workerID, g.sequence), nil
	}
}

// NextString 十进制字符串形式的 Next
func (g *Generator) NextString(ctx context.Context) (string, error) {
	id, err := g.Next(ctx)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// admit 检查状态与本地租约期限，期限已过时把 Active 迁到 Degraded
func (g *Generator) admit(ctx context.Context) error {
	switch g.State() {
	case StateActive:
	case StateClosed:
		return ErrClosed
	default:
		return ErrDegraded
	}
	deadline := g.deadline.Load()
	if g.clock.Now().UnixNano() < deadline {
		return nil
	}
	if g.transition(ctx, StateActive, StateDegraded) {
		g.logger.WarnContext(ctx, "lease deadline passed before renewal, generator degraded",
			clog.Time("deadline", time.Unix(0, deadline)))
	}
	if g.State() == StateClosed {
		return ErrClosed
	}
	return ErrDegraded
}

// extendDeadline 以请求发出时间为起点计算本地期限，只向后推
func (g *Generator) extendDeadline(sentAt time.Time, ttl time.Duration) {
	next := sentAt.Add(ttl - ttl/10).UnixNano()
	for {
		cur := g.deadline.Load()
		if next <= cur || g.deadline.CompareAndSwap(cur, next) {
			return
		}
	}
}

// resetDeadline 换了新租约时直接覆盖
func (g *Generator) resetDeadline(sentAt time.Time, ttl time.Duration) {
	g.deadline.Store(sentAt.Add(ttl - ttl/10).UnixNano())
}

// swapPendingWorker 换入重新获取到的 workerId，调用方持有 idMu。
// 换到不同的 id 时保留 lastTimestamp 并把 sequence 置满，下一个 ID 必然进入
// 下一毫秒，新 workerId 较小时 ID 仍然递增。
func (g *Generator) swapPendingWorker() {
	id := g.pendingWorker.Swap(-1)
	if id < 0 || id == g.workerID {
		return
	}
	g.workerID = id
	g.sequence = g.layout.MaxSequence()
}

// schedule 续约周期与单次超时，周期取配置值与授予 TTL 一半中的较小者
func (g *Generator) schedule() (interval, timeout time.Duration) {
	g.leaseMu.Lock()
	ttl := g.grantTTL
	g.leaseMu.Unlock()

	interval = g.cfg.RenewInterval
	if ttl > 0 {
		interval = min(interval, ttl/2)
	}
	return interval, min(g.cfg.RenewTimeout, interval/2)
}

// Close 停止续约并尽力释放租约，连接总会被关闭。可重复调用。
func (g *Generator) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		prev := State(g.state.Swap(int32(StateClosed)))
		if prev != StateClosed {
			g.metrics.transition(ctx, prev, StateClosed)
		}
		g.cancel()
		<-g.doneCh

		l := g.Lease()
		g.releaseLease(ctx, l)

		if err := g.client.Close(); err != nil {
			g.closeErr = xerrors.Wrap(err, "close coordinator client")
		}
		g.logger.Info("generator closed", clog.Int64("worker_id", l.WorkerID))
	})
	return g.closeErr
}

// releaseLease 尽力释放，失败只记录日志；失效的租约无需释放
func (g *Generator) releaseLease(ctx context.Context, l lease.WorkerLease) {
	if l.HolderToken == "" {
		return
	}
	_, timeout := g.schedule()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := g.client.Release(ctx, l.WorkerID, l.HolderToken); err != nil && !xerrors.Is(err, lease.ErrStale) {
		g.logger.Warn("release lease failed, it will expire on its own",
			clog.Int64("worker_id", l.WorkerID), clog.Error(err))
	}
}

// State 当前状态
func (g *Generator) State() State {
	return State(g.state.Load())
}

// setState 无条件迁移，仅用于创建阶段
func (g *Generator) setState(ctx context.Context, to State) {
	from := State(g.state.Swap(int32(to)))
	if from != to {
		g.metrics.transition(ctx, from, to)
	}
}

// transition 仅当当前状态为 from 时迁移，关闭后不会被续约协程改回
func (g *Generator) transition(ctx context.Context, from, to State) bool {
	if !g.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	g.metrics.transition(ctx, from, to)
	return true
}

// WorkerID 当前持有的 workerId
func (g *Generator) WorkerID() int64 {
	g.idMu.Lock()
	defer g.idMu.Unlock()
	g.swapPendingWorker()
	return g.workerID
}

// Lease 当前租约的副本
func (g *Generator) Lease() lease.WorkerLease {
	g.leaseMu.Lock()
	defer g.leaseMu.Unlock()
	return g.lease
}

// Layout 位布局
func (g *Generator) Layout() Layout {
	return g.layout
}

// Decompose 按本生成器的布局分解 ID
func (g *Generator) Decompose(id ID) Parts {
	return g.layout.Decompose(id)
}
