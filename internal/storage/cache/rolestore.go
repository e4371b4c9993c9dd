package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest, or returns ErrMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedRoleStore adds read-aside caching to any RoleStore. Roles are
// read-only to the dispatcher, so entries simply expire after ttl.
type CachedRoleStore struct {
	realStore dispatch.RoleStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedRoleStore(realStore dispatch.RoleStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedRoleStore {
	return &CachedRoleStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "RoleCache"),
	}
}

func (s *CachedRoleStore) GetRole(ctx context.Context, roleID string) (*dispatch.RoleRecord, error) {
	key := s.cacheKey(roleID)

	var cached dispatch.RoleRecord
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("Role cache read failed; using store", "role", roleID, "err", err)
	}

	role, err := s.realStore.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	// Absent roles are not cached so a newly created role is seen at once.
	if role == nil {
		return nil, nil
	}

	// Caching is an optimization; a failed write still serves from the store.
	if err := s.cache.Set(ctx, key, role, s.ttl); err != nil {
		s.logger.Warn("Role cache write failed", "role", roleID, "err", err)
	}
	return role, nil
}

// Invalidate drops the cached copy of a role.
func (s *CachedRoleStore) Invalidate(ctx context.Context, roleID string) error {
	return s.cache.Del(ctx, s.cacheKey(roleID))
}

func (s *CachedRoleStore) cacheKey(roleID string) string {
	return fmt.Sprintf("bulkpush:roles:%s", roleID)
}
