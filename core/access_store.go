package core

import (
	"context"
	"encoding/json"
	"fmt"
)

const accessKeyPrefix = "authbroker.access/"

// storedAccessEntry is the durable shape of an access decision. Allowed is a
// pointer because historical records omitted the field, and a missing value
// means allowed.
type storedAccessEntry struct {
	RequesterID string `json:"requesterId"`
	Name        string `json:"name"`
	Allowed     *bool  `json:"allowed,omitempty"`
}

// AccessControlStore remembers which requesters a user has allowed or denied
// for each provider account. Trusted requesters come from product
// configuration and short-circuit the stored decisions; they are surfaced in
// reads but never written back.
type AccessControlStore struct {
	settings SettingsStore
	trusted  TrustedRequestersConfig
	changes  *emitter[AccessChangeEvent]
	logger   Logger
}

func NewAccessControlStore(settings SettingsStore, trusted TrustedRequestersConfig, logger Logger) *AccessControlStore {
	return &AccessControlStore{
		settings: settings,
		trusted:  trusted,
		changes:  newEmitter[AccessChangeEvent](),
		logger:   logger,
	}
}

func accessKey(providerID, accountLabel string) string {
	return accessKeyPrefix + providerID + "-" + accountLabel
}

func (s *AccessControlStore) isTrusted(providerID, requesterID string) bool {
	for _, trusted := range s.trusted.All {
		if trusted == requesterID {
			return true
		}
	}
	for _, trusted := range s.trusted.ByProvider[providerID] {
		if trusted == requesterID {
			return true
		}
	}
	return false
}

// IsAllowed answers the tri-state access question for one requester.
// AccessUnknown means the user has never decided, which is distinct from an
// explicit deny.
func (s *AccessControlStore) IsAllowed(ctx context.Context, providerID, accountLabel, requesterID string) (Access, error) {
	if s.isTrusted(providerID, requesterID) {
		return AccessAllowed, nil
	}
	entries, err := s.readStored(ctx, providerID, accountLabel)
	if err != nil {
		return AccessUnknown, err
	}
	for _, entry := range entries {
		if entry.RequesterID != requesterID {
			continue
		}
		if entry.Allowed == nil || *entry.Allowed {
			return AccessAllowed, nil
		}
		return AccessDenied, nil
	}
	return AccessUnknown, nil
}

// ReadEntries lists every requester with a recorded decision for the
// account, plus synthesized entries for trusted requesters. Denied entries
// are included with Allowed=false so callers can render management UI.
func (s *AccessControlStore) ReadEntries(ctx context.Context, providerID, accountLabel string) ([]AccessEntry, error) {
	stored, err := s.readStored(ctx, providerID, accountLabel)
	if err != nil {
		return nil, err
	}
	entries := make([]AccessEntry, 0, len(stored))
	seen := map[string]bool{}
	for _, record := range stored {
		entries = append(entries, AccessEntry{
			RequesterID: record.RequesterID,
			Name:        record.Name,
			Allowed:     record.Allowed == nil || *record.Allowed,
		})
		seen[record.RequesterID] = true
	}
	for _, trusted := range append(append([]string(nil), s.trusted.All...), s.trusted.ByProvider[providerID]...) {
		if seen[trusted] {
			continue
		}
		entries = append(entries, AccessEntry{
			RequesterID: trusted,
			Name:        trusted,
			Allowed:     true,
			Trusted:     true,
		})
		seen[trusted] = true
	}
	return entries, nil
}

// UpdateEntries merges decisions into the stored list: existing records are
// updated in place, new ones appended. A stored display name is only
// replaced while it is unset or still the placeholder requester id, so a
// real name never degrades. Trusted entries are skipped, their grant lives
// in configuration.
func (s *AccessControlStore) UpdateEntries(ctx context.Context, providerID, accountLabel string, updates []AccessEntry) error {
	stored, err := s.readStored(ctx, providerID, accountLabel)
	if err != nil {
		return err
	}
	for _, update := range updates {
		if update.Trusted || s.isTrusted(providerID, update.RequesterID) {
			continue
		}
		allowed := update.Allowed
		replaced := false
		for i := range stored {
			if stored[i].RequesterID != update.RequesterID {
				continue
			}
			if update.Name != "" && (stored[i].Name == "" || stored[i].Name == stored[i].RequesterID) {
				stored[i].Name = update.Name
			}
			stored[i].Allowed = &allowed
			replaced = true
			break
		}
		if !replaced {
			name := update.Name
			if name == "" {
				name = update.RequesterID
			}
			stored = append(stored, storedAccessEntry{
				RequesterID: update.RequesterID,
				Name:        name,
				Allowed:     &allowed,
			})
		}
	}
	if err := s.writeStored(ctx, providerID, accountLabel, stored); err != nil {
		return err
	}
	s.changes.Emit(AccessChangeEvent{ProviderID: providerID, AccountLabel: accountLabel})
	return nil
}

// RemoveEntries drops every stored decision for the account, used when the
// account itself is signed out everywhere.
func (s *AccessControlStore) RemoveEntries(ctx context.Context, providerID, accountLabel string) error {
	if err := s.settings.Remove(ctx, accessKey(providerID, accountLabel), ScopeApplication); err != nil {
		return err
	}
	s.changes.Emit(AccessChangeEvent{ProviderID: providerID, AccountLabel: accountLabel})
	return nil
}

func (s *AccessControlStore) OnDidChange(fn func(AccessChangeEvent)) Unsubscribe {
	return s.changes.Subscribe(fn)
}

func (s *AccessControlStore) readStored(ctx context.Context, providerID, accountLabel string) ([]storedAccessEntry, error) {
	raw, found, err := s.settings.Get(ctx, accessKey(providerID, accountLabel), ScopeApplication)
	if err != nil {
		return nil, fmt.Errorf("core: reading access list: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var stored []storedAccessEntry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		// Corrupt records are discarded rather than wedging every access
		// check for the account.
		if s.logger != nil {
			s.logger.Warn("discarding unreadable access list",
				"provider_id", providerID, "account", accountLabel, "error", err)
		}
		return nil, nil
	}
	return stored, nil
}

func (s *AccessControlStore) writeStored(ctx context.Context, providerID, accountLabel string, stored []storedAccessEntry) error {
	if len(stored) == 0 {
		return s.settings.Remove(ctx, accessKey(providerID, accountLabel), ScopeApplication)
	}
	encoded, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("core: encoding access list: %w", err)
	}
	return s.settings.Set(ctx, accessKey(providerID, accountLabel), string(encoded), ScopeApplication)
}
