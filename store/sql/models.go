package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type settingRecord struct {
	bun.BaseModel `bun:"table:auth_broker_settings,alias:abs"`

	ID        string    `bun:"id,pk"`
	Key       string    `bun:"key,notnull"`
	Scope     int       `bun:"scope,notnull"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type secretRecord struct {
	bun.BaseModel `bun:"table:auth_broker_secrets,alias:abx"`

	ID        string    `bun:"id,pk"`
	Key       string    `bun:"key,notnull"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
