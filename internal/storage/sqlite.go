package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"duebot/pkg/logx"
)

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schedule_settings (
				scope TEXT PRIMARY KEY,
				enabled INTEGER NOT NULL,
				check_interval_minutes INTEGER NOT NULL,
				notification_hour INTEGER NOT NULL,
				weekend_allowed INTEGER NOT NULL,
				timezone TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS dedup_marks (
				scope TEXT PRIMARY KEY,
				sent_date TEXT NOT NULL
			)`,
		},
	},
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var current int
	if err := s.db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version(version) VALUES(?)`, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSettings(ctx context.Context, scope string) (Settings, bool, error) {
	var row struct {
		Settings
		Scope string `db:"scope"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT scope, enabled, check_interval_minutes, notification_hour, weekend_allowed, timezone
		 FROM schedule_settings WHERE scope = ?`, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	return row.Settings, true, nil
}

func (s *sqliteStore) SaveSettings(ctx context.Context, scope string, v Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_settings(scope, enabled, check_interval_minutes, notification_hour, weekend_allowed, timezone)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(scope) DO UPDATE SET
			enabled=excluded.enabled,
			check_interval_minutes=excluded.check_interval_minutes,
			notification_hour=excluded.notification_hour,
			weekend_allowed=excluded.weekend_allowed,
			timezone=excluded.timezone`,
		scope, v.Enabled, v.CheckIntervalMinutes, v.NotificationHour, v.WeekendAllowed, v.Timezone)
	return err
}

func (s *sqliteStore) LastSent(ctx context.Context, scope string) (string, bool, error) {
	var date string
	err := s.db.GetContext(ctx, &date, `SELECT sent_date FROM dedup_marks WHERE scope = ?`, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return date, true, nil
}

// TryMarkSent claims (scope, date) in one statement; the WHERE clause on
// the upsert makes a same-date second caller a no-op, so RowsAffected
// distinguishes winner from duplicate without a read-then-write window.
func (s *sqliteStore) TryMarkSent(ctx context.Context, scope, date string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup_marks(scope, sent_date) VALUES(?,?)
		 ON CONFLICT(scope) DO UPDATE SET sent_date=excluded.sent_date
		 WHERE dedup_marks.sent_date <> excluded.sent_date`,
		scope, date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
