package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-authbroker/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettingsStore persists scoped key/value settings in SQL. It backs the
// access, preference, usage, and dynamic-provider tracking stores.
type SettingsStore struct {
	db   *bun.DB
	repo repository.Repository[*settingRecord]
}

func NewSettingsStore(db *bun.DB) (*SettingsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*settingRecord](db, settingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid settings repository wiring: %w", err)
		}
	}
	return &SettingsStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SettingsStore) Get(ctx context.Context, key string, scope core.SettingsScope) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: settings store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: settings key is required")
	}

	record := &settingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Where("?TableAlias.scope = ?", int(scope)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return record.Value, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string, scope core.SettingsScope) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: settings key is required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSettingTx(ctx, tx, key, scope)
		if err != nil {
			return err
		}
		if record == nil {
			record = &settingRecord{
				ID:        uuid.NewString(),
				Key:       key,
				Scope:     int(scope),
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findSettingTx(ctx, tx, key, scope)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				return nil
			}
		}

		record.Value = value
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func (s *SettingsStore) Remove(ctx context.Context, key string, scope core.SettingsScope) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: settings key is required")
	}
	_, err := s.db.NewDelete().
		Model((*settingRecord)(nil)).
		Where("?TableAlias.key = ?", key).
		Where("?TableAlias.scope = ?", int(scope)).
		Exec(ctx)
	return err
}

func findSettingTx(ctx context.Context, tx bun.Tx, key string, scope core.SettingsScope) (*settingRecord, error) {
	record := &settingRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", strings.TrimSpace(key)).
		Where("?TableAlias.scope = ?", int(scope)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
