package idgen

import (
	"context"
	"time"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/xerrors"
)

// renewLoop 每轮重新计算周期，重新获取到 TTL 不同的租约后随之调整
func (g *Generator) renewLoop(ctx context.Context) {
	defer close(g.doneCh)

	interval, _ := g.schedule()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			g.tick(ctx)
			interval, _ = g.schedule()
			timer.Reset(interval)
		}
	}
}

// tick 执行一次续约；协调者已明确判定租约失效时改为重新获取
func (g *Generator) tick(ctx context.Context) {
	g.leaseMu.Lock()
	cur, lost := g.lease, g.lost
	g.leaseMu.Unlock()

	if lost {
		g.reacquire(ctx, cur)
		return
	}
	g.renew(ctx, cur)
}

// renew 任何失败（失效、超时、传输错误）都进入 Degraded，成功则恢复 Active
func (g *Generator) renew(ctx context.Context, cur lease.WorkerLease) {
	_, timeout := g.schedule()
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sentAt := g.clock.Now()
	expiresAt, err := g.client.Renew(rctx, cur.WorkerID, cur.HolderToken)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stale := xerrors.Is(err, lease.ErrStale)
		result := "error"
		if stale {
			result = "stale"
			g.leaseMu.Lock()
			g.lost = true
			g.leaseMu.Unlock()
		}
		g.metrics.renewals.Inc(ctx, metrics.L("result", result))
		if g.transition(ctx, StateActive, StateDegraded) {
			g.logger.Warn("lease renewal failed, generator degraded",
				clog.Int64("worker_id", cur.WorkerID),
				clog.Bool("stale", stale),
				clog.ErrorWithCode(err, xerrors.GetCode(err)))
		}
		return
	}

	g.metrics.renewals.Inc(ctx, metrics.L("result", "ok"))
	g.leaseMu.Lock()
	if g.lease.HolderToken != cur.HolderToken {
		// 续约期间租约已被替换
		g.leaseMu.Unlock()
		return
	}
	g.lease.ExpiresAt = expiresAt
	ttl := g.grantTTL
	g.leaseMu.Unlock()
	g.extendDeadline(sentAt, ttl)

	if g.transition(ctx, StateDegraded, StateActive) {
		g.logger.Info("lease renewed, generator recovered",
			clog.Int64("worker_id", cur.WorkerID), clog.Time("expires_at", expiresAt))
	}
}

// reacquire 优先申请原来的 workerId。新 id 只放进 pendingWorker，由下一次
// Next 换入，这里不碰 idMu，不会被正在等待时钟的 Next 阻塞。
func (g *Generator) reacquire(ctx context.Context, prev lease.WorkerLease) {
	_, timeout := g.schedule()
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	preferred := prev.WorkerID
	sentAt := g.clock.Now()
	l, err := g.client.Acquire(rctx, coordinator.AcquireRequest{PreferredWorkerID: &preferred, Holder: g.cfg.Holder})
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("re-acquire lease failed, still degraded",
				clog.Int64("prev_worker_id", prev.WorkerID), clog.Error(err))
		}
		return
	}
	if l.WorkerID < 0 || l.WorkerID > g.layout.MaxWorkerID() {
		g.releaseLease(ctx, l)
		g.logger.Error("re-acquired worker id does not fit layout",
			clog.Int64("worker_id", l.WorkerID), clog.Int64("max_worker_id", g.layout.MaxWorkerID()))
		return
	}

	g.pendingWorker.Store(l.WorkerID)

	ttl := l.ExpiresAt.Sub(l.GrantedAt)
	g.leaseMu.Lock()
	g.lease = l
	g.grantTTL = ttl
	g.lost = false
	g.leaseMu.Unlock()
	g.resetDeadline(sentAt, ttl)

	if g.transition(ctx, StateDegraded, StateActive) {
		g.logger.Info("lease re-acquired, generator recovered",
			clog.Int64("prev_worker_id", prev.WorkerID),
			clog.Int64("worker_id", l.WorkerID),
			clog.Uint64("version", l.Version))
	}
}
