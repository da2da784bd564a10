package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "credguard/internal/errors"
)

const (
	defaultProfileKeyPrefix = "credguard:profile:"
	defaultProfileIndexKey  = "credguard:profile-index"
	maxWatchRetries         = 10
	lockStripes             = 64
)

// RedisProfileStore persists profiles as JSON documents in Redis. Updates run under a
// striped in-process lock and a WATCH/MULTI transaction so concurrent instances cannot
// lose each other's writes.
type RedisProfileStore struct {
	client    redis.UniversalClient
	keyPrefix string
	indexKey  string
	ttl       time.Duration
	now       func() time.Time
	stripes   [lockStripes]sync.Mutex
}

// RedisProfileStoreOption configures a RedisProfileStore
type RedisProfileStoreOption func(*RedisProfileStore)

// WithKeyPrefix sets the prefix of profile keys
func WithKeyPrefix(prefix string) RedisProfileStoreOption {
	return func(s *RedisProfileStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithProfileTTL expires profiles that have not been updated for ttl. Zero keeps them forever.
func WithProfileTTL(ttl time.Duration) RedisProfileStoreOption {
	return func(s *RedisProfileStore) {
		s.ttl = ttl
	}
}

// NewRedisProfileStore constructs a Redis-backed profile store
func NewRedisProfileStore(client redis.UniversalClient, opts ...RedisProfileStoreOption) *RedisProfileStore {
	s := &RedisProfileStore{
		client:    client,
		keyPrefix: defaultProfileKeyPrefix,
		indexKey:  defaultProfileIndexKey,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisProfileStore) key(identityID string) string {
	return s.keyPrefix + identityID
}

func (s *RedisProfileStore) stripe(identityID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identityID))
	return &s.stripes[h.Sum32()%lockStripes]
}

// Get loads one profile
func (s *RedisProfileStore) Get(ctx context.Context, identityID string) (*IdentityProfile, error) {
	data, err := s.client.Get(ctx, s.key(identityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrProfileNotFound
	}
	if err != nil {
		return nil, apperrors.NewStorageError("load profile", err)
	}
	return decodeProfile(data)
}

// Update applies fn inside a WATCH transaction, retrying when another writer wins the race
func (s *RedisProfileStore) Update(ctx context.Context, identityID string, fn func(*IdentityProfile) error) (*IdentityProfile, error) {
	mu := s.stripe(identityID)
	mu.Lock()
	defer mu.Unlock()

	key := s.key(identityID)
	var (
		result *IdentityProfile
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		var working *IdentityProfile
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			working = NewIdentityProfile(identityID, s.now())
		case err != nil:
			return err
		default:
			if working, err = decodeProfile(data); err != nil {
				return err
			}
		}

		if fnErr = fn(working); fnErr != nil {
			return fnErr
		}

		encoded, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			pipe.SAdd(ctx, s.indexKey, identityID)
			return nil
		})
		if err == nil {
			result = working
		}
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if fnErr != nil {
			return nil, fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewStorageError("update profile", err)
	}
	return nil, apperrors.NewStorageError("update profile", fmt.Errorf("too many concurrent writers for %s", identityID))
}

// Snapshot loads every indexed profile. Index members whose key expired are dropped.
func (s *RedisProfileStore) Snapshot(ctx context.Context) ([]*IdentityProfile, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return nil, apperrors.NewStorageError("list profiles", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.NewStorageError("load profiles", err)
	}

	var stale []any
	profiles := make([]*IdentityProfile, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		p, err := decodeProfile([]byte(raw))
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey, stale...).Err()
	}
	return profiles, nil
}

// Count returns the size of the profile index
func (s *RedisProfileStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey).Result()
	if err != nil {
		return 0, apperrors.NewStorageError("count profiles", err)
	}
	return int(n), nil
}

// Ping checks the Redis connection
func (s *RedisProfileStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeProfile(data []byte) (*IdentityProfile, error) {
	var p IdentityProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperrors.NewStorageError("decode profile", err)
	}
	if p.TypicalAddresses == nil {
		p.TypicalAddresses = make(map[string]struct{})
	}
	return &p, nil
}
