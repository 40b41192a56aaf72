package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"duebot/internal/bindings"
	"duebot/internal/deadline"
	"duebot/internal/storage"
	"duebot/internal/window"
	"duebot/pkg/logx"
)

// runCycle performs one pass of the state machine:
//
//	Checking -> SkippedDedup | SkippedWindow | Dispatching -> Idle
//
// The dedup guard runs twice: a cheap read-only check up front (so a
// skipped cycle does not touch the snapshot at all) and an atomic
// check-and-mark immediately before dispatch, which is the authoritative
// claim. Winner-takes-the-day: a tick racing a manual trigger produces
// exactly one send.
func (s *Service) runCycle(ctx context.Context, t Trigger) CycleResult {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if !cfg.Enabled && !t.Manual {
		s.setState(StateDisabled)
		return CycleResult{Skip: SkipGate}
	}

	// A manual trigger runs even while the scheduler is disabled; the
	// observable state returns to disabled afterwards, not idle.
	s.setState(StateChecking)
	defer func() {
		if cfg.Enabled {
			s.setState(StateIdle)
		} else {
			s.setState(StateDisabled)
		}
	}()

	loc := s.location(cfg.Timezone)
	now := s.now()
	local := now.In(loc)

	if !t.Manual && !gateOpen(local, cfg) {
		return CycleResult{Skip: SkipGate}
	}

	scope := strings.TrimSpace(t.Scope)
	if scope == "" {
		scope = ScopeGlobal
	}
	today := local.Format(storage.DateFormat)

	if !t.Force {
		if sent, err := s.alreadySent(ctx, scope, today); err != nil {
			s.log.Warn("dedup read failed; proceeding", logx.String("scope", scope), logx.Err(err))
		} else if sent {
			s.log.Info("cycle skipped: already sent today", logx.String("scope", scope), logx.String("date", today))
			return CycleResult{Skip: SkipDedup}
		}
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return CycleResult{Err: fmt.Errorf("fetching snapshot: %w", err)}
	}

	binds, err := s.registry.Bindings(ctx)
	if err != nil {
		return CycleResult{Err: fmt.Errorf("reading bindings: %w", err)}
	}

	// Guard against a misconfigured global hour: automatic sends wait for
	// at least one recipient timezone to be inside its window. A manual
	// trigger is an explicit human decision and is exempt.
	if !t.Manual && !s.anyWindowOpen(snap, binds, cfg, now) {
		s.log.Info("cycle skipped: no recipient timezone in window")
		return CycleResult{Skip: SkipWindow}
	}

	items := deadline.Collect(snap, cfg.HorizonDays, now, loc)
	if len(items) == 0 {
		s.log.Info("cycle skipped: nothing due within horizon", logx.Int("horizon_days", cfg.HorizonDays))
		return CycleResult{Skip: SkipNoItems}
	}

	// Authoritative dedup claim, atomic with respect to concurrent cycles.
	if !t.Force {
		claimed, err := s.claim(ctx, scope, today)
		if err != nil {
			return CycleResult{Err: fmt.Errorf("claiming dedup mark: %w", err)}
		}
		if !claimed {
			return CycleResult{Skip: SkipDedup}
		}
	}

	s.setState(StateDispatching)
	s.log.Info("dispatching digest",
		logx.Int("items", len(items)),
		logx.Bool("manual", t.Manual),
		logx.String("scope", scope))

	tzOf := func(userID string) string {
		if tz := snap.UserTimezone(userID); tz != "" {
			return tz
		}
		return cfg.Timezone
	}
	rep := s.dispatcher.Cycle(ctx, items, binds, cfg.Groups, tzOf, now)
	return CycleResult{Ran: true, Report: rep}
}

func gateOpen(local time.Time, cfg Config) bool {
	if local.Hour() != cfg.NotificationHour {
		return false
	}
	wd := local.Weekday()
	if (wd == time.Saturday || wd == time.Sunday) && !cfg.WeekendAllowed {
		return false
	}
	return true
}

// anyWindowOpen reports whether at least one active recipient or group
// timezone is currently inside its notification window.
func (s *Service) anyWindowOpen(snap deadline.Snapshot, binds []bindings.Binding, cfg Config, now time.Time) bool {
	fallback := cfg.Timezone
	if fallback == "" {
		fallback = "UTC"
	}
	for _, b := range binds {
		if !b.Active {
			continue
		}
		tz := snap.UserTimezone(b.UserID)
		if tz == "" {
			tz = fallback
		}
		if window.IsOptimalTime(tz, now) {
			return true
		}
	}
	for _, g := range cfg.Groups {
		tz := g.Timezone
		if tz == "" {
			tz = fallback
		}
		if window.IsOptimalTime(tz, now) {
			return true
		}
	}
	return false
}

func (s *Service) alreadySent(ctx context.Context, scope, today string) (bool, error) {
	if s.store != nil {
		date, ok, err := s.store.LastSent(ctx, scope)
		if err != nil {
			return false, err
		}
		return ok && date == today, nil
	}
	s.marksMu.Lock()
	defer s.marksMu.Unlock()
	return s.marks[scope] == today, nil
}

func (s *Service) claim(ctx context.Context, scope, today string) (bool, error) {
	if s.store != nil {
		return s.store.TryMarkSent(ctx, scope, today)
	}
	s.marksMu.Lock()
	defer s.marksMu.Unlock()
	if s.marks[scope] == today {
		return false, nil
	}
	s.marks[scope] = today
	return true, nil
}

func (s *Service) location(tz string) *time.Location {
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
		s.log.Warn("invalid schedule timezone; using UTC", logx.String("tz", tz))
	}
	return time.UTC
}
