package license

import (
	"context"
	"sync"
	"time"

	apperrors "credguard/internal/errors"
)

// ProfileStore holds identity profiles. Update is the only mutation path and runs fn
// under a per-identity lock, creating the profile on first use.
type ProfileStore interface {
	Get(ctx context.Context, identityID string) (*IdentityProfile, error)
	Update(ctx context.Context, identityID string, fn func(*IdentityProfile) error) (*IdentityProfile, error)
	Snapshot(ctx context.Context) ([]*IdentityProfile, error)
	Count(ctx context.Context) (int, error)
}

type profileEntry struct {
	mu      sync.Mutex
	profile *IdentityProfile
}

// MemoryProfileStore keeps profiles in process memory
type MemoryProfileStore struct {
	mu      sync.RWMutex
	entries map[string]*profileEntry
	now     func() time.Time
}

// NewMemoryProfileStore creates an empty store
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		entries: make(map[string]*profileEntry),
		now:     time.Now,
	}
}

func (s *MemoryProfileStore) entry(identityID string) *profileEntry {
	s.mu.RLock()
	e, ok := s.entries[identityID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[identityID]; ok {
		return e
	}
	e = &profileEntry{}
	s.entries[identityID] = e
	return e
}

// Get returns a copy of the stored profile
func (s *MemoryProfileStore) Get(ctx context.Context, identityID string) (*IdentityProfile, error) {
	s.mu.RLock()
	e, ok := s.entries[identityID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrProfileNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return nil, apperrors.ErrProfileNotFound
	}
	return e.profile.Clone(), nil
}

// Update applies fn to the identity's profile. The change is discarded when fn fails.
func (s *MemoryProfileStore) Update(ctx context.Context, identityID string, fn func(*IdentityProfile) error) (*IdentityProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := s.entry(identityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	var working *IdentityProfile
	if e.profile != nil {
		working = e.profile.Clone()
	} else {
		working = NewIdentityProfile(identityID, s.now())
	}

	if err := fn(working); err != nil {
		return nil, err
	}

	e.profile = working
	return working.Clone(), nil
}

// Snapshot copies every profile, holding each identity lock only for its own copy
func (s *MemoryProfileStore) Snapshot(ctx context.Context) ([]*IdentityProfile, error) {
	s.mu.RLock()
	entries := make([]*profileEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	profiles := make([]*IdentityProfile, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.mu.Lock()
		if e.profile != nil {
			profiles = append(profiles, e.profile.Clone())
		}
		e.mu.Unlock()
	}
	return profiles, nil
}

// Count returns the number of stored profiles
func (s *MemoryProfileStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		e.mu.Lock()
		if e.profile != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}
