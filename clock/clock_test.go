package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newGuardAt(ms int64, maxDrift time.Duration) (*Guard, *Fake) {
	f := NewFake(epoch.Add(time.Duration(ms) * time.Millisecond))
	return NewGuard(f, epoch, maxDrift), f
}

func TestGuardNow(t *testing.T) {
	g, f := newGuardAt(1000, DefaultMaxBackwardDrift)
	assert.Equal(t, int64(1000), g.Now())
	f.Advance(5 * time.Millisecond)
	assert.Equal(t, int64(1005), g.Now())
	assert.Equal(t, DefaultMaxBackwardDrift, g.MaxBackwardDrift())
}

func TestCheckAdvance(t *testing.T) {
	tests := []struct {
		name       string
		now        int64
		last       int64
		maxDrift   time.Duration
		wantAction Action
		wantUntil  int64
		wantDrift  time.Duration
	}{
		{"时钟前进", 1001, 1000, 10 * time.Millisecond, Proceed, 0, 0},
		{"同一毫秒", 1000, 1000, 10 * time.Millisecond, Proceed, 0, 0},
		{"容忍范围内回拨", 995, 1000, 10 * time.Millisecond, WaitUntil, 1000, 5 * time.Millisecond},
		{"恰好等于容忍度", 990, 1000, 10 * time.Millisecond, WaitUntil, 1000, 10 * time.Millisecond},
		{"超出容忍度", 989, 1000, 10 * time.Millisecond, Reject, 0, 11 * time.Millisecond},
		{"零容忍拒绝任何回拨", 999, 1000, 0, Reject, 0, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGuardAt(tt.now, tt.maxDrift)
			now, d := g.CheckAdvance(tt.last)
			assert.Equal(t, tt.now, now)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantUntil, d.Until)
			assert.Equal(t, tt.wantDrift, d.Drift)
		})
	}
}

func TestNegativeDriftTreatedAsZero(t *testing.T) {
	g, _ := newGuardAt(999, -time.Second)
	_, d := g.CheckAdvance(1000)
	assert.Equal(t, Reject, d.Action)
}

func TestWaitUntil(t *testing.T) {
	g, f := newGuardAt(995, DefaultMaxBackwardDrift)

	ts, err := g.WaitUntil(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, f.Sleeps())

	ts, err = g.WaitUntil(context.Background(), 900)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ts, "已到达目标时不休眠")
	assert.Len(t, f.Sleeps(), 1)
}

func TestWaitNext(t *testing.T) {
	g, _ := newGuardAt(1000, DefaultMaxBackwardDrift)
	ts, err := g.WaitNext(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), ts)
}

func TestWaitUntilCanceled(t *testing.T) {
	g, _ := newGuardAt(0, DefaultMaxBackwardDrift)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.WaitUntil(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystemClock(t *testing.T) {
	c := System()
	start := c.Now()
	require.NoError(t, c.Sleep(context.Background(), 2*time.Millisecond))
	assert.GreaterOrEqual(t, c.Now().Sub(start), 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Hour), context.Canceled)

	g := NewGuard(nil, time.UnixMilli(0), time.Millisecond)
	assert.InDelta(t, time.Now().UnixMilli(), g.Now(), 1000)
}

func TestFakeClock(t *testing.T) {
	f := NewFake(epoch)
	f.Advance(time.Second)
	f.Rewind(200 * time.Millisecond)
	assert.Equal(t, epoch.Add(800*time.Millisecond), f.Now())

	f.Set(epoch)
	assert.Equal(t, epoch, f.Now())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "proceed", Proceed.String())
	assert.Equal(t, "wait_until", WaitUntil.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "action(7)", Action(7).String())
}
