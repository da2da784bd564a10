package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "credguard/internal/errors"
)

func newRedisStore(t *testing.T, opts ...RedisProfileStoreOption) (*RedisProfileStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisProfileStore(client, opts...), mr
}

func profileStores(t *testing.T) map[string]ProfileStore {
	redisStore, _ := newRedisStore(t)
	return map[string]ProfileStore{
		"memory": NewMemoryProfileStore(),
		"redis":  redisStore,
	}
}

func TestProfileStoreContract(t *testing.T) {
	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "user")
			assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)

			updated, err := store.Update(ctx, "user", func(p *IdentityProfile) error {
				p.TotalRequests++
				p.TypicalAddresses["10.0.0.1"] = struct{}{}
				p.LastKnownLocation = &GeoPoint{Lat: 1.5, Lon: 2.5}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), updated.TotalRequests)

			got, err := store.Get(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, "user", got.IdentityID)
			assert.Equal(t, []string{"10.0.0.1"}, got.Addresses())
			require.NotNil(t, got.LastKnownLocation)
			assert.Equal(t, 1.5, got.LastKnownLocation.Lat)

			got.TotalRequests = 99
			again, err := store.Get(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, int64(1), again.TotalRequests, "returned profiles are copies")

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestProfileStoreUpdateErrorDiscards(t *testing.T) {
	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")

			_, err := store.Update(ctx, "user", func(p *IdentityProfile) error {
				p.TotalRequests = 5
				return boom
			})
			assert.ErrorIs(t, err, boom)

			_, err = store.Get(ctx, "user")
			assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
	}
}

func TestProfileStoreConcurrentUpdates(t *testing.T) {
	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 25; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Update(ctx, "shared", func(p *IdentityProfile) error {
						p.TotalRequests++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			p, err := store.Get(ctx, "shared")
			require.NoError(t, err)
			assert.Equal(t, int64(25), p.TotalRequests)
		})
	}
}

func TestProfileStoreSnapshot(t *testing.T) {
	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				_, err := store.Update(ctx, fmt.Sprintf("user-%d", i), func(p *IdentityProfile) error {
					p.TotalRequests = int64(i)
					return nil
				})
				require.NoError(t, err)
			}

			profiles, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Len(t, profiles, 3)
		})
	}
}

func TestRedisProfileStoreTTL(t *testing.T) {
	store, mr := newRedisStore(t, WithProfileTTL(time.Hour), WithKeyPrefix("test:profile:"))
	ctx := context.Background()

	_, err := store.Update(ctx, "user", func(p *IdentityProfile) error { return nil })
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:profile:user"))

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "user")
	assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)

	profiles, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "snapshot drops expired index members")
}

func TestRedisProfileStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "user")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))
	assert.Error(t, store.Ping(context.Background()))
}
