package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"duebot/internal/bindings"
	"duebot/internal/dispatch"
	"duebot/internal/storage"
	"duebot/pkg/logx"
)

var ErrNotRunning = errors.New("scheduler not running")

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg,
		log:        log,
		store:      deps.Store,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		snapshot:   deps.Snapshot,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		triggerCh:  make(chan Trigger, 8),
		state:      StateIdle,
		marks:      map[string]string{},
		now:        time.Now,
	}
}

type Deps struct {
	Store      storage.Store
	Registry   bindings.Registry
	Dispatcher *dispatch.Dispatcher
	Snapshot   SnapshotFunc
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run
// concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Service) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Apply swaps the schedule settings. The running loop picks them up on its
// next tick; it is never interrupted mid-cycle. Settings are also persisted
// so the host application sees the effective values.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	store := s.store
	s.mu.Unlock()

	if !cfg.Enabled {
		s.setState(StateDisabled)
	} else if s.State() == StateDisabled {
		s.setState(StateIdle)
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := store.SaveSettings(ctx, ScopeGlobal, storage.Settings{
			Enabled:              cfg.Enabled,
			CheckIntervalMinutes: int(cfg.CheckInterval / time.Minute),
			NotificationHour:     cfg.NotificationHour,
			WeekendAllowed:       cfg.WeekendAllowed,
			Timezone:             cfg.Timezone,
		})
		if err != nil {
			s.log.Warn("persisting schedule settings failed", logx.Err(err))
		}
	}
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// workers).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.Enabled {
		s.setState(StateIdle)
	} else {
		s.setState(StateDisabled)
	}

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(ctx, stopCh)
	}()
	s.log.Info("scheduler started",
		logx.Bool("enabled", cfg.Enabled),
		logx.Int("hour", cfg.NotificationHour),
		logx.Bool("weekends", cfg.WeekendAllowed),
		logx.String("tz", strings.TrimSpace(cfg.Timezone)))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// TriggerNow requests an immediate cycle (administrator "send now"). It
// bypasses the hour/weekend gate; the dedup guard still applies unless
// force is set. The call blocks until the cycle finishes or ctx is done.
func (s *Service) TriggerNow(ctx context.Context, scope string, force bool) (CycleResult, error) {
	s.mu.Lock()
	running := s.stopCh != nil
	s.mu.Unlock()
	if !running {
		return CycleResult{}, ErrNotRunning
	}

	t := Trigger{Scope: scope, Manual: true, Force: force, reply: make(chan CycleResult, 1)}
	select {
	case s.triggerCh <- t:
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
	select {
	case res := <-t.reply:
		return res, res.Err
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

// loop is the polling worker. Tick source is either a fixed interval or,
// when check_spec is set, a cron schedule.
func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case t := <-s.triggerCh:
			timer.Stop()
			res := s.runCycle(ctx, t)
			if t.reply != nil {
				t.reply <- res
			}
		case <-timer.C:
			res := s.runCycle(ctx, Trigger{Scope: ScopeGlobal})
			if res.Err != nil {
				s.log.Warn("automatic cycle failed", logx.Err(res.Err))
			}
		}
	}
}

func (s *Service) nextWait() time.Duration {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if spec := strings.TrimSpace(cfg.CheckSpec); spec != "" {
		if sched, err := s.parser.Parse(spec); err == nil {
			now := s.now()
			if d := sched.Next(now).Sub(now); d > 0 {
				return d
			}
		} else {
			s.log.Warn("invalid check_spec; falling back to interval", logx.String("spec", spec), logx.Err(err))
		}
	}
	if cfg.CheckInterval > 0 {
		return cfg.CheckInterval
	}
	return 5 * time.Minute
}
