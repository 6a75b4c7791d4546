package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-authbroker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const settingsCacheKeyPrefix = "go-authbroker::settings::v1"

type cachedSettingValue struct {
	Value string
	Found bool
}

// CachedSettingsStore layers a read-through cache over a SettingsStore.
// Writes invalidate the cached entry so the next read observes the
// persisted value.
type CachedSettingsStore struct {
	base  core.SettingsStore
	cache repositorycache.CacheService
}

func NewCachedSettingsStore(
	base core.SettingsStore,
	cacheService repositorycache.CacheService,
) (*CachedSettingsStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base settings store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: settings cache service is required")
	}
	return &CachedSettingsStore{base: base, cache: cacheService}, nil
}

// SettingsCacheKey returns the deterministic cache key contract for scoped
// settings reads: go-authbroker::settings::v1::<scope>::<key> with the key
// segment URL-path escaped.
func SettingsCacheKey(key string, scope core.SettingsScope) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: settings key is required")
	}
	segments := []string{
		strconv.Itoa(int(scope)),
		url.PathEscape(key),
	}
	return strings.Join(append([]string{settingsCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedSettingsStore) Get(ctx context.Context, key string, scope core.SettingsScope) (string, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached settings store is not configured")
	}
	cacheKey, err := SettingsCacheKey(key, scope)
	if err != nil {
		return "", false, err
	}

	cached, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedSettingValue, error) {
		value, found, fetchErr := s.base.Get(ctx, key, scope)
		if fetchErr != nil {
			return cachedSettingValue{}, fetchErr
		}
		return cachedSettingValue{Value: value, Found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	return cached.Value, cached.Found, nil
}

func (s *CachedSettingsStore) Set(ctx context.Context, key, value string, scope core.SettingsScope) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached settings store is not configured")
	}
	cacheKey, err := SettingsCacheKey(key, scope)
	if err != nil {
		return err
	}
	if err := s.base.Set(ctx, key, value, scope); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedSettingsStore) Remove(ctx context.Context, key string, scope core.SettingsScope) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached settings store is not configured")
	}
	cacheKey, err := SettingsCacheKey(key, scope)
	if err != nil {
		return err
	}
	if err := s.base.Remove(ctx, key, scope); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.SettingsStore = (*CachedSettingsStore)(nil)
