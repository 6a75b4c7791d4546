package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	authbroker "github.com/goliatone/go-authbroker"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRegister_DefaultSourceLabel(t *testing.T) {
	var gotLabel string
	_, err := Register(context.Background(), func(_ context.Context, _ string, sourceLabel string, _ fs.FS) error {
		gotLabel = sourceLabel
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if gotLabel != "go-authbroker" {
		t.Fatalf("expected default source label go-authbroker, got %q", gotLabel)
	}
}

func TestBrokerSchemaMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := authbroker.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260828000001_create_auth_broker_settings.up.sql",
		"data/sql/migrations/20260828000001_create_auth_broker_settings.down.sql",
		"data/sql/migrations/20260828000002_create_auth_broker_secrets.up.sql",
		"data/sql/migrations/20260828000002_create_auth_broker_secrets.down.sql",
		"data/sql/migrations/sqlite/20260828000001_create_auth_broker_settings.up.sql",
		"data/sql/migrations/sqlite/20260828000001_create_auth_broker_settings.down.sql",
		"data/sql/migrations/sqlite/20260828000002_create_auth_broker_secrets.up.sql",
		"data/sql/migrations/sqlite/20260828000002_create_auth_broker_secrets.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteBrokerSchemaMigrations_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-broker-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := authbroker.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ups := []string{
		"20260828000001_create_auth_broker_settings.up.sql",
		"20260828000002_create_auth_broker_secrets.up.sql",
	}
	for _, migration := range ups {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	insertSetting := `
		INSERT INTO auth_broker_settings (id, key, scope, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertSetting,
		"setting-1", "authbroker.accessControl/github", 0, "{}", "2026-08-28T00:00:00Z", "2026-08-28T00:00:00Z",
	); err != nil {
		t.Fatalf("insert setting: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSetting,
		"setting-2", "authbroker.accessControl/github", 1, "{}", "2026-08-28T00:00:00Z", "2026-08-28T00:00:00Z",
	); err != nil {
		t.Fatalf("expected same key in a different scope to insert: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSetting,
		"setting-3", "authbroker.accessControl/github", 0, "{}", "2026-08-28T00:01:00Z", "2026-08-28T00:01:00Z",
	); err == nil {
		t.Fatalf("expected unique (key, scope) violation")
	}

	insertSecret := `
		INSERT INTO auth_broker_secrets (id, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertSecret,
		"secret-1", "authbroker.dynamicProvider/github", "payload", "2026-08-28T00:00:00Z", "2026-08-28T00:00:00Z",
	); err != nil {
		t.Fatalf("insert secret: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSecret,
		"secret-2", "authbroker.dynamicProvider/github", "payload", "2026-08-28T00:01:00Z", "2026-08-28T00:01:00Z",
	); err == nil {
		t.Fatalf("expected unique key violation")
	}

	downs := []string{
		"20260828000002_create_auth_broker_secrets.down.sql",
		"20260828000001_create_auth_broker_settings.down.sql",
	}
	for _, migration := range downs {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	for _, tableName := range []string{"auth_broker_settings", "auth_broker_secrets"} {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 0 {
			t.Fatalf("expected table %s to be dropped after down migration", tableName)
		}
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
