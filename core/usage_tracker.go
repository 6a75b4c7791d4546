package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const usageKeyPrefix = "authbroker.usages/"

// UsageTracker records which requesters have used which provider account,
// with what scopes and when. The data backs account-management UI and the
// "first time this requester touches this account" checks.
type UsageTracker struct {
	settings SettingsStore
	logger   Logger
	now      func() time.Time
}

func NewUsageTracker(settings SettingsStore, logger Logger) *UsageTracker {
	return &UsageTracker{
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

func usageKey(providerID, accountLabel string) string {
	return usageKeyPrefix + providerID + "-" + accountLabel
}

func (t *UsageTracker) ReadAccountUsages(ctx context.Context, providerID, accountLabel string) ([]AccountUsage, error) {
	raw, found, err := t.settings.Get(ctx, usageKey(providerID, accountLabel), ScopeApplication)
	if err != nil {
		return nil, fmt.Errorf("core: reading account usages: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var usages []AccountUsage
	if err := json.Unmarshal([]byte(raw), &usages); err != nil {
		if t.logger != nil {
			t.logger.Warn("discarding unreadable usage list",
				"provider_id", providerID, "account", accountLabel, "error", err)
		}
		return nil, nil
	}
	return usages, nil
}

// AddAccountUsage upserts the requester's usage record, refreshing the
// timestamp and scope list on repeat use.
func (t *UsageTracker) AddAccountUsage(ctx context.Context, providerID, accountLabel string, scopes []string, requesterID, requesterName string) error {
	usages, err := t.ReadAccountUsages(ctx, providerID, accountLabel)
	if err != nil {
		return err
	}
	entry := AccountUsage{
		RequesterID:   requesterID,
		RequesterName: requesterName,
		Scopes:        append([]string(nil), scopes...),
		LastUsedAt:    t.now().UnixMilli(),
	}
	replaced := false
	for i := range usages {
		if usages[i].RequesterID == requesterID {
			usages[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		usages = append(usages, entry)
	}
	return t.write(ctx, providerID, accountLabel, usages)
}

// HasUsages reports whether any requester has touched the account.
func (t *UsageTracker) HasUsages(ctx context.Context, providerID, accountLabel string) (bool, error) {
	usages, err := t.ReadAccountUsages(ctx, providerID, accountLabel)
	if err != nil {
		return false, err
	}
	return len(usages) > 0, nil
}

// RemoveAccountUsages forgets the account's usage history, typically after
// the account is signed out everywhere.
func (t *UsageTracker) RemoveAccountUsages(ctx context.Context, providerID, accountLabel string) error {
	return t.settings.Remove(ctx, usageKey(providerID, accountLabel), ScopeApplication)
}

func (t *UsageTracker) write(ctx context.Context, providerID, accountLabel string, usages []AccountUsage) error {
	if len(usages) == 0 {
		return t.settings.Remove(ctx, usageKey(providerID, accountLabel), ScopeApplication)
	}
	encoded, err := json.Marshal(usages)
	if err != nil {
		return fmt.Errorf("core: encoding account usages: %w", err)
	}
	return t.settings.Set(ctx, usageKey(providerID, accountLabel), string(encoded), ScopeApplication)
}
