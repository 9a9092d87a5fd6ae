package clock

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxBackwardDrift 默认容忍的时钟回拨量
//
// 10ms 覆盖常见 NTP slew 抖动，最坏情况下一次 Next 阻塞约 10ms；
// 更大的跳变（手工改时、NTP step）直接拒绝，交给调用方处理。
const DefaultMaxBackwardDrift = 10 * time.Millisecond

// Action 时钟检查结果
type Action int

const (
	// Proceed 当前时间不早于上次时间，直接使用
	Proceed Action = iota
	// WaitUntil 小幅回拨，等待时钟追上 Until 后继续
	WaitUntil
	// Reject 回拨超过容忍度
	Reject
)

func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case WaitUntil:
		return "wait_until"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision CheckAdvance 的判定结果
type Decision struct {
	Action Action
	// Until WaitUntil 时需要等到的毫秒时间戳
	Until int64
	// Drift 观测到的回拨量，Proceed 时为 0
	Drift time.Duration
}

// Guard 以 epoch 为起点的毫秒时钟，附带回拨策略
type Guard struct {
	clock    Clock
	epochMs  int64
	maxDrift time.Duration
}

// NewGuard 创建 Guard；maxBackwardDrift 为负数时按 0 处理，即任何回拨都拒绝
func NewGuard(c Clock, epoch time.Time, maxBackwardDrift time.Duration) *Guard {
	if c == nil {
		c = System()
	}
	if maxBackwardDrift < 0 {
		maxBackwardDrift = 0
	}
	return &Guard{clock: c, epochMs: epoch.UnixMilli(), maxDrift: maxBackwardDrift}
}

// Now 距 epoch 的毫秒数
func (g *Guard) Now() int64 {
	return g.clock.Now().UnixMilli() - g.epochMs
}

// MaxBackwardDrift 返回容忍的回拨量
func (g *Guard) MaxBackwardDrift() time.Duration {
	return g.maxDrift
}

// CheckAdvance 对比上次使用的时间戳 last，返回当前时间戳与判定
func (g *Guard) CheckAdvance(last int64) (int64, Decision) {
	now := g.Now()
	if now >= last {
		return now, Decision{Action: Proceed}
	}
	drift := time.Duration(last-now) * time.Millisecond
	if drift <= g.maxDrift {
		return now, Decision{Action: WaitUntil, Until: last, Drift: drift}
	}
	return now, Decision{Action: Reject, Drift: drift}
}

// WaitUntil 休眠直到时钟到达 target，返回观测到的时间戳（>= target）
func (g *Guard) WaitUntil(ctx context.Context, target int64) (int64, error) {
	for {
		now := g.Now()
		if now >= target {
			return now, nil
		}
		if err := g.clock.Sleep(ctx, time.Duration(target-now)*time.Millisecond); err != nil {
			return now, err
		}
	}
}

// WaitNext 休眠直到时钟越过 last，用于序列号耗尽
func (g *Guard) WaitNext(ctx context.Context, last int64) (int64, error) {
	return g.WaitUntil(ctx, last+1)
}
