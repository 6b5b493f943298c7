package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Схема storefront версионируется прямо в коде: каждая ревизия описывает
// одну структуру checkout-домена парой up/down DDL. Порядок в срезе и есть
// порядок применения.
type schemaRevision struct {
	version int64
	name    string
	up      string
	down    string
}

var storefrontSchema = []schemaRevision{
	{
		version: 1,
		name:    "orders",
		up: `
CREATE TABLE IF NOT EXISTS orders (
    ref TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    currency TEXT NOT NULL,
    amount_minor BIGINT NOT NULL,
    intent_ref TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS orders_intent_ref_uq ON orders (intent_ref);
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_lines (
    id BIGSERIAL PRIMARY KEY,
    order_ref TEXT NOT NULL REFERENCES orders (ref) ON DELETE CASCADE,
    product_id TEXT NOT NULL,
    unit_price_minor BIGINT NOT NULL,
    quantity INT NOT NULL,
    snapshot_name TEXT NOT NULL DEFAULT '',
    snapshot_image_ref TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS order_lines_order_ref_idx ON order_lines (order_ref);
`,
		down: `
DROP TABLE IF EXISTS order_lines;
DROP TABLE IF EXISTS orders;
`,
	},
	{
		version: 2,
		name:    "outbox",
		up: `
CREATE TABLE IF NOT EXISTS outbox_messages (
    id TEXT PRIMARY KEY,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BYTEA NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempt_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS outbox_messages_pending_idx
    ON outbox_messages (created_at, id)
    WHERE status = 'pending';
`,
		down: `
DROP TABLE IF EXISTS outbox_messages;
`,
	},
	{
		version: 3,
		name:    "timeline",
		up: `
CREATE TABLE IF NOT EXISTS timeline_events (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    type TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    occurred TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS timeline_events_session_idx ON timeline_events (session_id, occurred);
`,
		down: `
DROP TABLE IF EXISTS timeline_events;
`,
	},
}

const (
	// Advisory lock, чтобы два экземпляра сервиса не мигрировали одновременно.
	schemaLockKey = int64(8254117703)

	schemaTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

// validateSchema проверяет согласованность среза ревизий: версии строго
// растут, имена уникальны, up/down непустые. Ошибка здесь означает опечатку
// в storefrontSchema и ловится тестами до первого подключения к базе.
func validateSchema(revisions []schemaRevision) error {
	if len(revisions) == 0 {
		return fmt.Errorf("schema has no revisions")
	}

	names := make(map[string]struct{}, len(revisions))
	var prev int64
	for _, rev := range revisions {
		if rev.version <= prev {
			return fmt.Errorf("revision versions must strictly increase, got %d after %d", rev.version, prev)
		}
		prev = rev.version

		if rev.name == "" {
			return fmt.Errorf("revision %d has no name", rev.version)
		}
		if _, ok := names[rev.name]; ok {
			return fmt.Errorf("duplicate revision name %q", rev.name)
		}
		names[rev.name] = struct{}{}

		if strings.TrimSpace(rev.up) == "" || strings.TrimSpace(rev.down) == "" {
			return fmt.Errorf("revision %d_%s must carry both up and down DDL", rev.version, rev.name)
		}
	}
	return nil
}

// MigrateUp применяет недостающие ревизии схемы.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, rev := range storefrontSchema {
			if applied[rev.version] {
				continue
			}
			if err := execRevision(ctx, conn, rev.up, `
				INSERT INTO schema_migrations (version, name, applied_at)
				VALUES ($1, $2, NOW())
			`, rev); err != nil {
				return err
			}
			done++
			if steps > 0 && done >= steps {
				break
			}
		}
		return nil
	})
}

// MigrateDown откатывает последние применённые ревизии.
// steps<=0 интерпретируется как 1 шаг для безопасного поведения.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	byVersion := make(map[int64]schemaRevision, len(storefrontSchema))
	for _, rev := range storefrontSchema {
		byVersion[rev.version] = rev
	}

	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		versions, err := newestAppliedVersions(ctx, conn, steps)
		if err != nil {
			return err
		}

		for _, version := range versions {
			rev, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("cannot rollback unknown schema revision %d", version)
			}
			if err := execRevision(ctx, conn, rev.down,
				`DELETE FROM schema_migrations WHERE version = $1`, rev); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию и число применённых ревизий.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, fmt.Errorf("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaTableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	if err := s.db.QueryRowContext(queryCtx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*)
		FROM schema_migrations
	`).Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}

	return version, count, nil
}

// withSchemaLock валидирует схему, берёт advisory lock и выполняет fn на
// одном подключении.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	if err := validateSchema(storefrontSchema); err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return fn(conn)
}

// execRevision выполняет DDL ревизии и запись в журнал одной транзакцией.
func execRevision(ctx context.Context, conn *sql.Conn, ddl, journalSQL string, rev schemaRevision) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for revision %d_%s: %w", rev.version, rev.name, err)
	}

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute revision %d_%s: %w", rev.version, rev.name, err)
	}

	journalArgs := []any{rev.version}
	if strings.Contains(journalSQL, "$2") {
		journalArgs = append(journalArgs, rev.name)
	}
	if _, err := tx.ExecContext(ctx, journalSQL, journalArgs...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("journal revision %d_%s: %w", rev.version, rev.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision %d_%s: %w", rev.version, rev.name, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied revisions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied revision: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied revisions: %w", err)
	}
	return applied, nil
}

func newestAppliedVersions(ctx context.Context, conn *sql.Conn, limit int) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT version
		FROM schema_migrations
		ORDER BY version DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query newest revisions: %w", err)
	}
	defer rows.Close()

	versions := make([]int64, 0, limit)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan newest revision: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate newest revisions: %w", err)
	}
	return versions, nil
}
