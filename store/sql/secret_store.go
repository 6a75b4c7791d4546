package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-authbroker/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SecretStore persists opaque secret payloads in SQL and notifies local
// subscribers when a key mutates. Change notifications carry the key only;
// readers fetch the value themselves so a stale event cannot leak a value.
type SecretStore struct {
	db   *bun.DB
	repo repository.Repository[*secretRecord]

	mu          sync.Mutex
	subscribers map[int]func(core.SecretChange)
	nextID      int
}

func NewSecretStore(db *bun.DB) (*SecretStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*secretRecord](db, secretHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid secret repository wiring: %w", err)
		}
	}
	return &SecretStore{
		db:          db,
		repo:        repo,
		subscribers: map[int]func(core.SecretChange){},
	}, nil
}

func (s *SecretStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: secret key is required")
	}

	record := &secretRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
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

func (s *SecretStore) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: secret key is required")
	}
	now := time.Now().UTC()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSecretTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &secretRecord{
				ID:        uuid.NewString(),
				Key:       key,
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findSecretTx(ctx, tx, key)
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
	if err != nil {
		return err
	}

	s.emit(core.SecretChange{Key: key})
	return nil
}

func (s *SecretStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: secret key is required")
	}
	result, err := s.db.NewDelete().
		Model((*secretRecord)(nil)).
		Where("?TableAlias.key = ?", key).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return nil
	}

	s.emit(core.SecretChange{Key: key})
	return nil
}

func (s *SecretStore) OnDidChange(fn func(core.SecretChange)) core.Unsubscribe {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *SecretStore) emit(change core.SecretChange) {
	s.mu.Lock()
	listeners := make([]func(core.SecretChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func findSecretTx(ctx context.Context, tx bun.Tx, key string) (*secretRecord, error) {
	record := &secretRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", strings.TrimSpace(key)).
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
