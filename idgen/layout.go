package idgen

import (
	"fmt"
	"strconv"

	"github.com/ceyewan/leaseflake/xerrors"
)

// ID 64 位标识，字段自高到低依次为 timestamp、workerId、sequence
type ID uint64

// Uint64 原始整数
func (id ID) Uint64() uint64 { return uint64(id) }

// Int64 布局位宽之和不超过 63，因此总是非负
func (id ID) Int64() int64 { return int64(id) }

// String 十进制表示
func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Hex 16 位补零十六进制
func (id ID) Hex() string { return fmt.Sprintf("%016x", uint64(id)) }

// Parts 分解后的三个字段
type Parts struct {
	Timestamp int64 `json:"timestamp"`
	WorkerID  int64 `json:"worker_id"`
	Sequence  int64 `json:"sequence"`
}

// String 按字段输出十六进制：16 位时间戳 + 4 位 workerId + 4 位序列号
func (p Parts) String() string {
	return fmt.Sprintf("%016x%04x%04x", p.Timestamp, p.WorkerID, p.Sequence)
}

// Layout 位布局
//
//	layout:
//	  timestamp_bits: 41
//	  worker_bits: 10
//	  sequence_bits: 12
type Layout struct {
	TimestampBits uint `mapstructure:"timestamp_bits" json:"timestamp_bits"`
	WorkerBits    uint `mapstructure:"worker_bits" json:"worker_bits"`
	SequenceBits  uint `mapstructure:"sequence_bits" json:"sequence_bits"`
}

// DefaultLayout 41/10/12，与经典 snowflake 一致
func DefaultLayout() Layout {
	return Layout{TimestampBits: 41, WorkerBits: 10, SequenceBits: 12}
}

func (l Layout) isZero() bool {
	return l == Layout{}
}

// Validate 三个位宽都必须大于 0，且总和不超过 63
func (l Layout) Validate() error {
	if l.TimestampBits == 0 || l.WorkerBits == 0 || l.SequenceBits == 0 {
		return xerrors.Wrapf(ErrInvalidLayout, "zero width in %d/%d/%d",
			l.TimestampBits, l.WorkerBits, l.SequenceBits)
	}
	if sum := l.TimestampBits + l.WorkerBits + l.SequenceBits; sum > 63 {
		return xerrors.Wrapf(ErrInvalidLayout, "total width %d exceeds 63", sum)
	}
	return nil
}

// MaxTimestamp 可表示的最大毫秒时间戳（相对 epoch）
func (l Layout) MaxTimestamp() int64 { return mask(l.TimestampBits) }

// MaxWorkerID 可表示的最大 workerId
func (l Layout) MaxWorkerID() int64 { return mask(l.WorkerBits) }

// MaxSequence 单毫秒内的最大序列号
func (l Layout) MaxSequence() int64 { return mask(l.SequenceBits) }

func mask(bits uint) int64 {
	return int64(1)<<bits - 1
}

// Compose 打包三个字段，任一字段越界返回 ErrInvalidInput
func (l Layout) Compose(timestamp, workerID, sequence int64) (ID, error) {
	switch {
	case timestamp < 0 || timestamp > l.MaxTimestamp():
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "timestamp %d out of range [0, %d]", timestamp, l.MaxTimestamp())
	case workerID < 0 || workerID > l.MaxWorkerID():
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "worker id %d out of range [0, %d]", workerID, l.MaxWorkerID())
	case sequence < 0 || sequence > l.MaxSequence():
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "sequence %d out of range [0, %d]", sequence, l.MaxSequence())
	}
	return l.pack(timestamp, workerID, sequence), nil
}

// pack 调用方保证字段不越界
func (l Layout) pack(timestamp, workerID, sequence int64) ID {
	return ID(timestamp<<(l.WorkerBits+l.SequenceBits) | workerID<<l.SequenceBits | sequence)
}

// Decompose Compose 的逆运算
func (l Layout) Decompose(id ID) Parts {
	v := int64(id)
	return Parts{
		Timestamp: v >> (l.WorkerBits + l.SequenceBits) & l.MaxTimestamp(),
		WorkerID:  v >> l.SequenceBits & l.MaxWorkerID(),
		Sequence:  v & l.MaxSequence(),
	}
}

// Parse 解析十进制 ID，并校验它落在布局的位宽内
func Parse(l Layout, s string) (ID, error) {
	if err := l.Validate(); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "parse id %q: %v", s, err)
	}
	total := l.TimestampBits + l.WorkerBits + l.SequenceBits
	if v>>total != 0 {
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "id %d wider than %d bits", v, total)
	}
	return ID(v), nil
}
