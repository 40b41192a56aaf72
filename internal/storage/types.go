package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON file backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and the scheduler falls
// back to an in-memory dedup guard (marks do not survive restarts).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DateFormat is the calendar-date key used for dedup marks.
const DateFormat = "2006-01-02"

// Settings is the persisted schedule configuration, one row per channel
// family scope ("" means global).
type Settings struct {
	Enabled              bool   `json:"enabled" db:"enabled"`
	CheckIntervalMinutes int    `json:"check_interval_minutes" db:"check_interval_minutes"`
	NotificationHour     int    `json:"notification_hour" db:"notification_hour"`
	WeekendAllowed       bool   `json:"weekend_allowed" db:"weekend_allowed"`
	Timezone             string `json:"timezone" db:"timezone"`
}

// Store is the persistence API used by the scheduler.
//
// TryMarkSent is the dedup guard: it atomically compares the stored mark
// for scope with date and claims it when different. Exactly one of several
// concurrent callers with the same (scope, date) wins. This is a single
// critical section on purpose: a read-then-write split here would allow a
// scheduler tick racing a manual trigger to double-send.
type Store interface {
	LoadSettings(ctx context.Context, scope string) (Settings, bool, error)
	SaveSettings(ctx context.Context, scope string, s Settings) error

	LastSent(ctx context.Context, scope string) (date string, ok bool, err error)
	TryMarkSent(ctx context.Context, scope, date string) (bool, error)

	Close() error
}
