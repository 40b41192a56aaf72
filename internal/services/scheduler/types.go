package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"duebot/internal/bindings"
	"duebot/internal/deadline"
	"duebot/internal/dispatch"
	"duebot/internal/storage"
	"duebot/pkg/logx"
)

// State is the observable position in the cycle state machine.
type State string

const (
	StateDisabled    State = "disabled"
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateDispatching State = "dispatching"
)

// SkipReason explains why a checked cycle did not dispatch.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipGate    SkipReason = "gate"     // wrong hour or weekend (automatic only)
	SkipDedup   SkipReason = "dedup"    // already sent today for this scope
	SkipWindow  SkipReason = "window"   // no recipient timezone currently optimal
	SkipNoItems SkipReason = "no_items" // nothing due within the horizon
)

// ScopeGlobal is the dedup scope for automatic sends.
const ScopeGlobal = "global"

type Config struct {
	Enabled bool
	// CheckInterval is the polling period. Default 5m.
	CheckInterval time.Duration
	// CheckSpec is an optional cron expression; when set it replaces the
	// fixed interval as the tick source.
	CheckSpec        string
	NotificationHour int
	WeekendAllowed   bool
	// Timezone evaluates the hour/weekend gate and is the fallback for
	// recipients without one. Default UTC.
	Timezone    string
	HorizonDays int
	// Groups are the per-platform aggregate targets.
	Groups []dispatch.GroupTarget
}

// Trigger is the serializable message that requests a cycle. Manual
// triggers bypass the hour/weekend gate; Force additionally bypasses the
// dedup guard.
type Trigger struct {
	Scope  string `json:"scope,omitempty"`
	Manual bool   `json:"manual,omitempty"`
	Force  bool   `json:"force,omitempty"`

	reply chan CycleResult
}

// CycleResult is what one trigger produced.
type CycleResult struct {
	Ran    bool
	Skip   SkipReason
	Report *dispatch.Report
	Err    error
}

// SnapshotFunc fetches a fresh read-only entity snapshot. It is called
// synchronously at the start of every cycle, never cached.
type SnapshotFunc func(ctx context.Context) (deadline.Snapshot, error)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store      storage.Store // nil means in-memory dedup only
	registry   bindings.Registry
	dispatcher *dispatch.Dispatcher
	snapshot   SnapshotFunc

	parser cron.Parser

	triggerCh chan Trigger
	stopCh    chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when the
	// worker fully exits.
	stopDone chan struct{}
	workerWG sync.WaitGroup

	stateMu sync.RWMutex
	state   State

	// marks is the dedup fallback when no store is configured; it does not
	// survive restarts.
	marksMu sync.Mutex
	marks   map[string]string

	// now is swappable in tests.
	now func() time.Time
}
