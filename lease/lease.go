// Package lease 定义 workerId 租约模型与租约存储。
//
// 每个 workerId 是一个槽位，槽位上至多存在一条存活租约；持有者凭 HolderToken
// 续约或释放。Store 只提供按槽位线性一致的读与比较交换，授予、续约、回收等
// 策略由 coordinator 决定。记录一旦写入就不再物理删除，释放只留下墓碑，
// 槽位数量受 workerId 位数限制，Version 因此在槽位的整个生命周期内单调递增。
//
// 后端：
//   - memory: 进程内，按槽位加锁，默认与测试使用
//   - redis:  每槽位一个 hash，Lua 脚本实现比较交换
//   - etcd:   每槽位一个 key，Txn 比较 Value 或 CreateRevision
//   - gorm:   worker_leases 表（SQLite/MySQL），乐观更新
package lease

import (
	"context"
	"time"
)

// WorkerLease 某个 workerId 上的租约记录
type WorkerLease struct {
	WorkerID    int64
	HolderToken string
	ExpiresAt   time.Time
	Version     uint64
	GrantedAt   time.Time
	// Holder 节点自报的标签，只用于诊断
	Holder string
}

// Live 租约在 now 时刻是否仍然有效
func (l WorkerLease) Live(now time.Time) bool {
	return l.HolderToken != "" && now.Before(l.ExpiresAt)
}

// Released 释放后留在槽位上的墓碑：清空令牌与持有者，保留 Version，
// 下一次授予在此基础上递增
func (l WorkerLease) Released(at time.Time) WorkerLease {
	return WorkerLease{
		WorkerID:  l.WorkerID,
		Version:   l.Version,
		ExpiresAt: at,
		GrantedAt: l.GrantedAt,
	}
}

// Matches 记录是否与给定的版本和令牌一致
func (l WorkerLease) Matches(version uint64, token string) bool {
	return l.Version == version && l.HolderToken == token
}

// Store 租约存储，所有方法并发安全
type Store interface {
	// Get 读取槽位，不存在时 found 为 false
	Get(ctx context.Context, workerID int64) (l WorkerLease, found bool, err error)

	// CompareAndSwap 仅当槽位仍为 prev（按 Version 与 HolderToken 比较）时写入 next；
	// found 为 false 表示期望槽位不存在。返回是否写入成功。
	CompareAndSwap(ctx context.Context, prev WorkerLease, found bool, next WorkerLease) (bool, error)

	// List 返回所有已记录的槽位（含已过期与已释放的墓碑），按 WorkerID 升序
	List(ctx context.Context) ([]WorkerLease, error)

	// Close 释放存储自身持有的资源，不关闭外部注入的连接器
	Close() error
}
