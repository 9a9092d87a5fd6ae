// Package events 发布租约生命周期事件：授予、续约、释放、回收。
//
// 事件只用于审计与观测，发布失败不影响租约本身。subject（NATS）或
// topic（Kafka）为 "<prefix>.<kind>"，默认 prefix 为 leaseflake.lease。
// 载荷为 msgpack 编码的 LeaseEvent，链路信息放在消息头中。
package events

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/leaseflake/xerrors"
)

// Kind 事件类型
type Kind string

const (
	KindGranted   Kind = "granted"
	KindRenewed   Kind = "renewed"
	KindReleased  Kind = "released"
	KindReclaimed Kind = "reclaimed"
)

// LeaseEvent 租约事件，不包含 holder token
type LeaseEvent struct {
	Kind        Kind   `msgpack:"kind" json:"kind"`
	WorkerID    int64  `msgpack:"worker_id" json:"worker_id"`
	Version     uint64 `msgpack:"version" json:"version"`
	Holder      string `msgpack:"holder" json:"holder"`
	ExpiresAtMs int64  `msgpack:"expires_at_ms" json:"expires_at_ms"`
	// PrevHolder 回收时被顶替的持有者
	PrevHolder string `msgpack:"prev_holder,omitempty" json:"prev_holder,omitempty"`
	AtMs       int64  `msgpack:"at_ms" json:"at_ms"`
}

// At 事件发生时间
func (e LeaseEvent) At() time.Time { return time.UnixMilli(e.AtMs) }

// Encode 编码为 msgpack
func Encode(e LeaseEvent) ([]byte, error) {
	return msgpack.Marshal(&e)
}

// Decode 解码 msgpack 载荷
func Decode(data []byte) (LeaseEvent, error) {
	var e LeaseEvent
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return e, xerrors.Wrap(err, "decode lease event")
	}
	return e, nil
}

// Publisher 事件发布器，方法并发安全
type Publisher interface {
	Publish(ctx context.Context, e LeaseEvent) error
	// Close 刷新未发送的事件，不关闭外部注入的连接器
	Close(ctx context.Context) error
}

// Subject 返回事件对应的 subject/topic
func Subject(prefix string, kind Kind) string {
	return prefix + "." + string(kind)
}
