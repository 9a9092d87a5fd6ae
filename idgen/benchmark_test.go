package idgen

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/leaseflake/clock"
	"github.com/ceyewan/leaseflake/coordinator"
	"github.com/ceyewan/leaseflake/lease"
)

func newBenchGenerator(b *testing.B) *Generator {
	b.Helper()
	svc, err := coordinator.NewService(&coordinator.Config{LeaseTTL: time.Minute}, lease.NewMemoryStore())
	if err != nil {
		b.Fatal(err)
	}
	g, err := New(context.Background(), &Config{LeaseTTL: time.Minute},
		WithLeaseClient(&testClient{API: svc}), WithClock(clock.System()))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func BenchmarkNext(b *testing.B) {
	g := newBenchGenerator(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Next(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNext_Parallel(b *testing.B) {
	g := newBenchGenerator(b)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := g.Next(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
