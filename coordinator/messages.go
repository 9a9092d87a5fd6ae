package coordinator

import (
	"time"

	"github.com/ceyewan/leaseflake/lease"
)

// LeaseReply Acquire 的应答
type LeaseReply struct {
	WorkerID        int64  `msgpack:"worker_id" json:"worker_id"`
	HolderToken     string `msgpack:"holder_token" json:"holder_token"`
	ExpiresAtUnixMs int64  `msgpack:"expires_at_unix_ms" json:"expires_at_unix_ms"`
	Version         uint64 `msgpack:"version" json:"version"`
	GrantedAtUnixMs int64  `msgpack:"granted_at_unix_ms" json:"granted_at_unix_ms"`
	Holder          string `msgpack:"holder" json:"holder"`
}

// RenewRequest 续约请求，Release 使用相同结构
type RenewRequest struct {
	WorkerID    int64  `msgpack:"worker_id" json:"worker_id"`
	HolderToken string `msgpack:"holder_token" json:"holder_token"`
}

// ReleaseRequest 释放请求
type ReleaseRequest = RenewRequest

// RenewReply 续约应答
type RenewReply struct {
	ExpiresAtUnixMs int64 `msgpack:"expires_at_unix_ms" json:"expires_at_unix_ms"`
}

// ReleaseReply 释放应答
type ReleaseReply struct{}

// ListRequest 管理接口：列出租约
type ListRequest struct{}

// LeaseInfo 对外展示的租约，不含 holder token
type LeaseInfo struct {
	WorkerID        int64  `msgpack:"worker_id" json:"worker_id"`
	Version         uint64 `msgpack:"version" json:"version"`
	Holder          string `msgpack:"holder" json:"holder"`
	ExpiresAtUnixMs int64  `msgpack:"expires_at_unix_ms" json:"expires_at_unix_ms"`
	GrantedAtUnixMs int64  `msgpack:"granted_at_unix_ms" json:"granted_at_unix_ms"`
	Live            bool   `msgpack:"live" json:"live"`
}

// ListReply 租约列表
type ListReply struct {
	Leases []LeaseInfo `msgpack:"leases" json:"leases"`
}

func toLeaseReply(l lease.WorkerLease) *LeaseReply {
	return &LeaseReply{
		WorkerID:        l.WorkerID,
		HolderToken:     l.HolderToken,
		ExpiresAtUnixMs: l.ExpiresAt.UnixMilli(),
		Version:         l.Version,
		GrantedAtUnixMs: l.GrantedAt.UnixMilli(),
		Holder:          l.Holder,
	}
}

func (r *LeaseReply) toLease() lease.WorkerLease {
	return lease.WorkerLease{
		WorkerID:    r.WorkerID,
		HolderToken: r.HolderToken,
		ExpiresAt:   time.UnixMilli(r.ExpiresAtUnixMs),
		Version:     r.Version,
		GrantedAt:   time.UnixMilli(r.GrantedAtUnixMs),
		Holder:      r.Holder,
	}
}

func toListReply(all []lease.WorkerLease, now time.Time) *ListReply {
	out := &ListReply{Leases: make([]LeaseInfo, len(all))}
	for i, l := range all {
		out.Leases[i] = LeaseInfo{
			WorkerID:        l.WorkerID,
			Version:         l.Version,
			Holder:          l.Holder,
			ExpiresAtUnixMs: l.ExpiresAt.UnixMilli(),
			GrantedAtUnixMs: l.GrantedAt.UnixMilli(),
			Live:            l.Live(now),
		}
	}
	return out
}

func (i LeaseInfo) toLease() lease.WorkerLease {
	return lease.WorkerLease{
		WorkerID:  i.WorkerID,
		Version:   i.Version,
		Holder:    i.Holder,
		ExpiresAt: time.UnixMilli(i.ExpiresAtUnixMs),
		GrantedAt: time.UnixMilli(i.GrantedAtUnixMs),
	}
}
