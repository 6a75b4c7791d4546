package core

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	accountPreferenceKeyPrefix = "authbroker.preferredAccounts/"
	sessionPreferenceKeyPrefix = "authbroker.sessionPreference/"
)

// PreferenceStore remembers which account and which session a requester last
// settled on. Writes land in both workspace and application scope; reads
// prefer the workspace value, so a workspace-local choice shadows the global
// one without erasing it.
//
// Requesters may be grouped: children configured under a parent share the
// parent's preference slot, so signing a parent into an account carries its
// children along.
type PreferenceStore struct {
	settings SettingsStore
	// parents maps a child requester id to the parent whose slot it shares.
	parents  map[string]string
	children map[string][]string
	changes  *emitter[PreferenceChangeEvent]
	logger   Logger
}

func NewPreferenceStore(settings SettingsStore, inheritance map[string][]string, logger Logger) *PreferenceStore {
	parents := map[string]string{}
	children := map[string][]string{}
	for parent, kids := range inheritance {
		for _, child := range kids {
			if child == parent {
				continue
			}
			parents[child] = parent
			children[parent] = append(children[parent], child)
		}
	}
	return &PreferenceStore{
		settings: settings,
		parents:  parents,
		children: children,
		changes:  newEmitter[PreferenceChangeEvent](),
		logger:   logger,
	}
}

// slotFor resolves the preference slot a requester reads and writes: its
// parent group when it has one, otherwise itself.
func (s *PreferenceStore) slotFor(requesterID string) string {
	if parent, ok := s.parents[requesterID]; ok {
		return parent
	}
	return requesterID
}

// affected lists every requester id that observes a change to the slot.
func (s *PreferenceStore) affected(slot string) []string {
	ids := []string{slot}
	ids = append(ids, s.children[slot]...)
	return ids
}

// AccountPreference returns the preferred account label for requester on
// provider, or empty when none is recorded.
func (s *PreferenceStore) AccountPreference(ctx context.Context, requesterID, providerID string) (string, error) {
	slot := s.slotFor(requesterID)
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		prefs, err := s.readAccountPrefs(ctx, providerID, scope)
		if err != nil {
			return "", err
		}
		if label, ok := prefs[slot]; ok {
			return label, nil
		}
	}
	return "", nil
}

func (s *PreferenceStore) UpdateAccountPreference(ctx context.Context, requesterID, providerID, accountLabel string) error {
	slot := s.slotFor(requesterID)
	changed := false
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		prefs, err := s.readAccountPrefs(ctx, providerID, scope)
		if err != nil {
			return err
		}
		if prefs[slot] == accountLabel {
			continue
		}
		prefs[slot] = accountLabel
		if err := s.writeAccountPrefs(ctx, providerID, scope, prefs); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		s.changes.Emit(PreferenceChangeEvent{ProviderID: providerID, RequesterIDs: s.affected(slot)})
	}
	return nil
}

func (s *PreferenceStore) RemoveAccountPreference(ctx context.Context, requesterID, providerID string) error {
	slot := s.slotFor(requesterID)
	changed := false
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		prefs, err := s.readAccountPrefs(ctx, providerID, scope)
		if err != nil {
			return err
		}
		if _, exists := prefs[slot]; !exists {
			continue
		}
		delete(prefs, slot)
		if err := s.writeAccountPrefs(ctx, providerID, scope, prefs); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		s.changes.Emit(PreferenceChangeEvent{ProviderID: providerID, RequesterIDs: s.affected(slot)})
	}
	return nil
}

// RequestersPreferringAccount lists the requester slots currently pinned to
// accountLabel on provider, expanded to include inheriting children.
func (s *PreferenceStore) RequestersPreferringAccount(ctx context.Context, providerID, accountLabel string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		prefs, err := s.readAccountPrefs(ctx, providerID, scope)
		if err != nil {
			return nil, err
		}
		for slot, label := range prefs {
			if label != accountLabel {
				continue
			}
			for _, id := range s.affected(slot) {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	return ids, nil
}

func sessionPreferenceKey(providerID, slot string, request ScopeRequest) string {
	return sessionPreferenceKeyPrefix + providerID + "-" + slot + "-" + request.Key()
}

// SessionPreference returns the remembered session id for the requester's
// slot and the request's scope shape, or empty when none is recorded.
func (s *PreferenceStore) SessionPreference(ctx context.Context, providerID, requesterID string, request ScopeRequest) (string, error) {
	key := sessionPreferenceKey(providerID, s.slotFor(requesterID), request)
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		value, found, err := s.settings.Get(ctx, key, scope)
		if err != nil {
			return "", fmt.Errorf("core: reading session preference: %w", err)
		}
		if found {
			return value, nil
		}
	}
	return "", nil
}

func (s *PreferenceStore) UpdateSessionPreference(ctx context.Context, providerID, requesterID string, request ScopeRequest, sessionID string) error {
	key := sessionPreferenceKey(providerID, s.slotFor(requesterID), request)
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		if err := s.settings.Set(ctx, key, sessionID, scope); err != nil {
			return err
		}
	}
	return nil
}

func (s *PreferenceStore) RemoveSessionPreference(ctx context.Context, providerID, requesterID string, request ScopeRequest) error {
	key := sessionPreferenceKey(providerID, s.slotFor(requesterID), request)
	for _, scope := range []SettingsScope{ScopeWorkspace, ScopeApplication} {
		if err := s.settings.Remove(ctx, key, scope); err != nil {
			return err
		}
	}
	return nil
}

func (s *PreferenceStore) OnDidChange(fn func(PreferenceChangeEvent)) Unsubscribe {
	return s.changes.Subscribe(fn)
}

func (s *PreferenceStore) readAccountPrefs(ctx context.Context, providerID string, scope SettingsScope) (map[string]string, error) {
	raw, found, err := s.settings.Get(ctx, accountPreferenceKeyPrefix+providerID, scope)
	if err != nil {
		return nil, fmt.Errorf("core: reading account preferences: %w", err)
	}
	if !found || raw == "" {
		return map[string]string{}, nil
	}
	prefs := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		if s.logger != nil {
			s.logger.Warn("discarding unreadable account preferences",
				"provider_id", providerID, "error", err)
		}
		return map[string]string{}, nil
	}
	return prefs, nil
}

func (s *PreferenceStore) writeAccountPrefs(ctx context.Context, providerID string, scope SettingsScope, prefs map[string]string) error {
	key := accountPreferenceKeyPrefix + providerID
	if len(prefs) == 0 {
		return s.settings.Remove(ctx, key, scope)
	}
	encoded, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("core: encoding account preferences: %w", err)
	}
	return s.settings.Set(ctx, key, string(encoded), scope)
}
