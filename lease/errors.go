package lease

import "github.com/ceyewan/leaseflake/xerrors"

// 错误码，HTTP 应答与日志中输出
const (
	CodeExhausted = "LEASE_EXHAUSTED"
	CodeStale     = "LEASE_STALE"
)

var (
	// ErrExhausted 所有 workerId 都被存活租约占用
	ErrExhausted = xerrors.WithCode(xerrors.New("lease: all worker ids are held by live leases"), CodeExhausted)

	// ErrStale 令牌不匹配、租约已过期或槽位不存在
	ErrStale = xerrors.WithCode(xerrors.New("lease: stale or unknown lease"), CodeStale)

	// ErrConnectorNil 所选后端缺少连接器
	ErrConnectorNil = xerrors.New("lease: connector is nil")
)
