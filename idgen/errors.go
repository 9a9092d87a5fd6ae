package idgen

import (
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/xerrors"
)

var (
	// ErrLeaseExhausted 所有 workerId 都已被占用，创建失败且不重试
	ErrLeaseExhausted = lease.ErrExhausted

	// ErrCoordinatorUnreachable 获取租约的重试次数耗尽
	ErrCoordinatorUnreachable = xerrors.New("idgen: coordinator unreachable")

	// ErrClockDrift 时钟回拨超过容忍度，状态未改变，稍后可重试
	ErrClockDrift = xerrors.New("idgen: clock moved backwards beyond tolerance")

	// ErrDegraded 租约所有权未确认，暂停发号
	ErrDegraded = xerrors.New("idgen: generator degraded, lease ownership unconfirmed")

	// ErrClosed 生成器已关闭
	ErrClosed = xerrors.New("idgen: generator closed")

	// ErrInvalidLayout 位布局非法
	ErrInvalidLayout = xerrors.Wrap(xerrors.ErrInvalidInput, "idgen: layout")
)
