package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/events"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

// 指标名
const (
	MetricLeaseOps  = "leaseflake_coordinator_lease_ops_total"
	MetricLiveLease = "leaseflake_coordinator_live_leases"
)

// 操作结果标签
const (
	resultOK        = "ok"
	resultExhausted = "exhausted"
	resultStale     = "stale"
	resultInvalid   = "invalid"
	resultError     = "error"
)

// Service 协调者核心逻辑，无会话状态，所有状态在 Store 中
type Service struct {
	cfg       Config
	store     lease.Store
	clock     clock.Clock
	publisher events.Publisher
	logger    clog.Logger

	ops  metrics.Counter
	live metrics.Gauge
}

var _ API = (*Service)(nil)

// NewService 创建 Service，store 由调用方负责关闭
func NewService(cfg *Config, store lease.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "lease store is required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	ops, err := o.meter.Counter(MetricLeaseOps, "Lease operations handled by the coordinator")
	if err != nil {
		return nil, xerrors.Wrap(err, "create lease ops counter")
	}
	live, err := o.meter.Gauge(MetricLiveLease, "Live leases observed by the last acquire scan")
	if err != nil {
		return nil, xerrors.Wrap(err, "create live leases gauge")
	}

	return &Service{
		cfg:       c,
		store:     store,
		clock:     o.clock,
		publisher: o.publisher,
		logger:    o.logger,
		ops:       ops,
		live:      live,
	}, nil
}

// Config 返回生效的配置
func (s *Service) Config() Config { return s.cfg }

func (s *Service) now() time.Time {
	// 去掉单调时钟与亚毫秒部分，与各后端的存储精度一致
	return time.UnixMilli(s.clock.Now().UnixMilli())
}

func (s *Service) Acquire(ctx context.Context, req AcquireRequest) (l lease.WorkerLease, err error) {
	defer func() { s.record(ctx, "acquire", err) }()

	maxID := s.cfg.MaxWorkerID()
	if req.PreferredWorkerID != nil && (*req.PreferredWorkerID < 0 || *req.PreferredWorkerID > maxID) {
		return lease.WorkerLease{}, xerrors.Wrapf(xerrors.ErrInvalidInput,
			"preferred worker id %d out of range [0, %d]", *req.PreferredWorkerID, maxID)
	}

	snapshot, err := s.store.List(ctx)
	if err != nil {
		return lease.WorkerLease{}, xerrors.Wrap(err, "list leases")
	}
	now := s.now()
	known := make(map[int64]lease.WorkerLease, len(snapshot))
	liveCount := 0
	for _, l := range snapshot {
		known[l.WorkerID] = l
		if l.Live(now) {
			liveCount++
		}
	}
	s.live.Set(ctx, float64(liveCount))

	try := func(id int64) (lease.WorkerLease, bool, error) {
		prev, found := known[id]
		if found && prev.Live(now) {
			return lease.WorkerLease{}, false, nil
		}
		return s.grant(ctx, id, prev, found, req.Holder, now)
	}

	if req.PreferredWorkerID != nil {
		granted, ok, err := try(*req.PreferredWorkerID)
		if err != nil || ok {
			return granted, err
		}
	}
	for id := int64(0); id <= maxID; id++ {
		if req.PreferredWorkerID != nil && id == *req.PreferredWorkerID {
			continue
		}
		granted, ok, err := try(id)
		if err != nil || ok {
			return granted, err
		}
	}

	s.logger.WarnContext(ctx, "no free worker id", clog.String("holder", req.Holder), clog.Int("live", liveCount))
	return lease.WorkerLease{}, lease.ErrExhausted
}

// grant 在槽位上写入新租约；CAS 失败说明有并发获取者，返回 ok=false 让调用方换下一个槽位
func (s *Service) grant(ctx context.Context, id int64, prev lease.WorkerLease, found bool, holder string, now time.Time) (lease.WorkerLease, bool, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return lease.WorkerLease{}, false, xerrors.Wrap(err, "generate holder token")
	}
	next := lease.WorkerLease{
		WorkerID:    id,
		HolderToken: token.String(),
		ExpiresAt:   now.Add(s.cfg.LeaseTTL),
		Version:     1,
		GrantedAt:   now,
		Holder:      holder,
	}
	if found {
		next.Version = prev.Version + 1
	}

	ok, err := s.store.CompareAndSwap(ctx, prev, found, next)
	if err != nil {
		return lease.WorkerLease{}, false, xerrors.Wrapf(err, "grant worker id %d", id)
	}
	if !ok {
		s.logger.DebugContext(ctx, "lost race on worker id", clog.Int64("worker_id", id))
		return lease.WorkerLease{}, false, nil
	}

	kind := events.KindGranted
	fields := []clog.Field{
		clog.Int64("worker_id", id),
		clog.Uint64("version", next.Version),
		clog.String("holder", holder),
		clog.Time("expires_at", next.ExpiresAt),
	}
	if found && prev.HolderToken != "" {
		kind = events.KindReclaimed
		fields = append(fields, clog.String("prev_holder", prev.Holder), clog.Time("prev_expires_at", prev.ExpiresAt))
	}
	s.logger.InfoContext(ctx, "lease granted", append(fields, clog.String("kind", string(kind)))...)
	s.emit(ctx, kind, next, prev.Holder)
	return next, true, nil
}

func (s *Service) Renew(ctx context.Context, workerID int64, token string) (expiresAt time.Time, err error) {
	defer func() { s.record(ctx, "renew", err) }()

	cur, err := s.current(ctx, workerID, token)
	if err != nil {
		return time.Time{}, err
	}
	next := cur
	next.ExpiresAt = s.now().Add(s.cfg.LeaseTTL)

	ok, err := s.store.CompareAndSwap(ctx, cur, true, next)
	if err != nil {
		return time.Time{}, xerrors.Wrapf(err, "renew worker id %d", workerID)
	}
	if !ok {
		return time.Time{}, lease.ErrStale
	}
	s.logger.DebugContext(ctx, "lease renewed", clog.Int64("worker_id", workerID), clog.Time("expires_at", next.ExpiresAt))
	s.emit(ctx, events.KindRenewed, next, "")
	return next.ExpiresAt, nil
}

func (s *Service) Release(ctx context.Context, workerID int64, token string) (err error) {
	defer func() { s.record(ctx, "release", err) }()

	cur, err := s.current(ctx, workerID, token)
	if err != nil {
		return err
	}
	// 留下墓碑而不是删除记录，下一次授予的 Version 接着递增
	ok, err := s.store.CompareAndSwap(ctx, cur, true, cur.Released(s.now()))
	if err != nil {
		return xerrors.Wrapf(err, "release worker id %d", workerID)
	}
	if !ok {
		return lease.ErrStale
	}
	s.logger.InfoContext(ctx, "lease released", clog.Int64("worker_id", workerID), clog.String("holder", cur.Holder))
	s.emit(ctx, events.KindReleased, cur, "")
	return nil
}

func (s *Service) List(ctx context.Context) ([]lease.WorkerLease, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "list leases")
	}
	return all, nil
}

// current 读取槽位并校验 token 与有效期
func (s *Service) current(ctx context.Context, workerID int64, token string) (lease.WorkerLease, error) {
	if workerID < 0 || workerID > s.cfg.MaxWorkerID() {
		return lease.WorkerLease{}, xerrors.Wrapf(xerrors.ErrInvalidInput, "worker id %d out of range", workerID)
	}
	if token == "" {
		return lease.WorkerLease{}, xerrors.Wrap(xerrors.ErrInvalidInput, "holder token is required")
	}
	cur, found, err := s.store.Get(ctx, workerID)
	if err != nil {
		return lease.WorkerLease{}, xerrors.Wrapf(err, "get worker id %d", workerID)
	}
	if !found || cur.HolderToken != token || !cur.Live(s.now()) {
		return lease.WorkerLease{}, lease.ErrStale
	}
	return cur, nil
}

func (s *Service) emit(ctx context.Context, kind events.Kind, l lease.WorkerLease, prevHolder string) {
	e := events.LeaseEvent{
		Kind:        kind,
		WorkerID:    l.WorkerID,
		Version:     l.Version,
		Holder:      l.Holder,
		ExpiresAtMs: l.ExpiresAt.UnixMilli(),
		AtMs:        s.now().UnixMilli(),
	}
	if kind == events.KindReclaimed {
		e.PrevHolder = prevHolder
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "publish lease event failed",
			clog.String("kind", string(kind)), clog.Int64("worker_id", l.WorkerID), clog.Error(err))
	}
}

func (s *Service) record(ctx context.Context, op string, err error) {
	s.ops.Inc(ctx, metrics.L(metrics.LabelOperation, op), metrics.L("result", resultOf(err)))
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case xerrors.Is(err, lease.ErrExhausted):
		return resultExhausted
	case xerrors.Is(err, lease.ErrStale):
		return resultStale
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		return resultInvalid
	default:
		return resultError
	}
}
