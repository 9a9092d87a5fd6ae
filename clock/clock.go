// Package clock 提供 ID 生成所需的时间源与时钟回拨策略。
//
// Clock 抽象真实时间，测试使用 Fake 手动推进或回拨；Guard 在每次生成 ID 时
// 判断当前毫秒能否使用：前进则放行，小幅回拨则等待追上，超出容忍度则拒绝。
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock 时间源
type Clock interface {
	Now() time.Time
	// Sleep 休眠 d，ctx 取消时提前返回 ctx.Err()
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// System 返回基于 time.Now 的真实时钟
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake 手动控制的时钟，Sleep 会直接把时间推进 d
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFake 以 start 为初始时间创建 Fake
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	return nil
}

// Advance 推进时间
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Rewind 回拨时间，模拟 NTP 校正
func (f *Fake) Rewind(d time.Duration) {
	f.Advance(-d)
}

// Set 设置为指定时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Sleeps 返回迄今为止所有 Sleep 的时长
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
