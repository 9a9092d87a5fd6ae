//go:build integration

package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/leaseflake/testkit"
)

func TestRedisStore(t *testing.T) {
	conn := testkit.NewRedisConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewStore(&StoreConfig{Driver: DriverRedis, Prefix: "lf:" + testkit.NewID()},
			WithRedisConnector(conn))
		require.NoError(t, err)
		return s
	})

	t.Run("记录不设物理过期", func(t *testing.T) {
		prefix := "lf:" + testkit.NewID()
		s, err := NewStore(&StoreConfig{Driver: DriverRedis, Prefix: prefix}, WithRedisConnector(conn))
		require.NoError(t, err)
		ctx := context.Background()
		l := newLease(1, 1, "t")
		ok, err := s.CompareAndSwap(ctx, WorkerLease{}, false, l)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.CompareAndSwap(ctx, l, true, l.Released(base))
		require.NoError(t, err)
		require.True(t, ok)

		ttl, err := conn.GetClient().PTTL(ctx, prefix+":1").Result()
		require.NoError(t, err)
		assert.Equal(t, time.Duration(-1), ttl, "-1 表示没有过期时间")
	})
}

func TestEtcdStore(t *testing.T) {
	conn := testkit.NewEtcdConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewStore(&StoreConfig{Driver: DriverEtcd, Prefix: "/lf/" + testkit.NewID()},
			WithEtcdConnector(conn))
		require.NoError(t, err)
		return s
	})

	t.Run("反复续约不产生 etcd lease", func(t *testing.T) {
		ctx := context.Background()
		client := conn.GetClient()
		before, err := client.Leases(ctx)
		require.NoError(t, err)

		prefix := "/lf/" + testkit.NewID()
		s, err := NewStore(&StoreConfig{Driver: DriverEtcd, Prefix: prefix}, WithEtcdConnector(conn))
		require.NoError(t, err)
		cur := newLease(2, 1, "t")
		ok, err := s.CompareAndSwap(ctx, WorkerLease{}, false, cur)
		require.NoError(t, err)
		require.True(t, ok)
		for i := 1; i <= 20; i++ {
			next := cur
			next.ExpiresAt = cur.ExpiresAt.Add(time.Second)
			ok, err = s.CompareAndSwap(ctx, cur, true, next)
			require.NoError(t, err)
			require.True(t, ok)
			cur = next
		}
		// 比较失败的写入同样不能留下 lease
		ok, err = s.CompareAndSwap(ctx, newLease(2, 9, "x"), true, newLease(2, 10, "y"))
		require.NoError(t, err)
		require.False(t, ok)

		after, err := client.Leases(ctx)
		require.NoError(t, err)
		assert.Len(t, after.Leases, len(before.Leases))

		resp, err := client.Get(ctx, prefix+"/2")
		require.NoError(t, err)
		require.Len(t, resp.Kvs, 1)
		assert.Zero(t, resp.Kvs[0].Lease)
	})
}

func TestGormStoreMySQL(t *testing.T) {
	conn := testkit.NewMySQLConnector(t)
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewStore(&StoreConfig{Driver: DriverGorm, Table: "worker_leases_" + testkit.NewID()},
			WithDBConnector(conn))
		require.NoError(t, err)
		return s
	})
}
