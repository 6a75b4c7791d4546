package core

import (
	"context"
	"sync"
)

type scopedKey struct {
	key   string
	scope SettingsScope
}

// MemorySettingsStore is the in-process SettingsStore used when no durable
// backing is wired, and by tests.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[scopedKey]string
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{values: map[scopedKey]string{}}
}

func (s *MemorySettingsStore) Get(_ context.Context, key string, scope SettingsScope) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, found := s.values[scopedKey{key, scope}]
	return value, found, nil
}

func (s *MemorySettingsStore) Set(_ context.Context, key, value string, scope SettingsScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[scopedKey{key, scope}] = value
	return nil
}

func (s *MemorySettingsStore) Remove(_ context.Context, key string, scope SettingsScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, scopedKey{key, scope})
	return nil
}

// MemorySecretStore is the in-process SecretStore counterpart. Change events
// fire for every mutation, matching the durable implementations.
type MemorySecretStore struct {
	mu      sync.RWMutex
	values  map[string]string
	changes *emitter[SecretChange]
}

func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{
		values:  map[string]string{},
		changes: newEmitter[SecretChange](),
	}
}

func (s *MemorySecretStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, found := s.values[key]
	return value, found, nil
}

func (s *MemorySecretStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	s.changes.Emit(SecretChange{Key: key})
	return nil
}

func (s *MemorySecretStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, found := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if found {
		s.changes.Emit(SecretChange{Key: key})
	}
	return nil
}

func (s *MemorySecretStore) OnDidChange(fn func(SecretChange)) Unsubscribe {
	return s.changes.Subscribe(fn)
}

var (
	_ SettingsStore = (*MemorySettingsStore)(nil)
	_ SecretStore   = (*MemorySecretStore)(nil)
)
