// Package dispatch fans a deadline digest out to every active recipient
// binding and configured group target across the enabled channels.
//
// All sends of a cycle run concurrently with independent failure capture:
// one recipient's failure never prevents, delays or cancels another's send.
// The dispatcher performs no retries; a failed outcome is terminal for the
// cycle and is surfaced in the report, never swallowed.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"duebot/internal/bindings"
	"duebot/internal/deadline"
	"duebot/internal/digest"
	"duebot/internal/transport"
	"duebot/pkg/logx"
)

// GroupTarget is one per-platform aggregate destination. The aggregate
// digest covers all collected items and is sent once per target.
type GroupTarget struct {
	Platform transport.Platform
	TargetID string
	Timezone string
}

type Options struct {
	// PerSendTimeout bounds each adapter call so a hung channel stalls only
	// its own outcome slot, and only for a bounded time. Default 30s.
	PerSendTimeout time.Duration
	// RatePerSec limits sends per platform. Default 10.
	RatePerSec int
	// DefaultTimezone is used for recipients without a known timezone.
	DefaultTimezone string
}

type PlatformReport struct {
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
	Failures  []transport.Outcome `json:"failures,omitempty"`
}

// Report aggregates the per-recipient outcomes of one dispatch cycle.
type Report struct {
	ID         string                                 `json:"id"`
	StartedAt  time.Time                              `json:"started_at"`
	FinishedAt time.Time                              `json:"finished_at"`
	Platforms  map[transport.Platform]*PlatformReport `json:"platforms"`
}

func (r *Report) Attempted() int {
	n := 0
	for _, p := range r.Platforms {
		n += p.Attempted
	}
	return n
}

func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Platforms {
		n += len(p.Failures)
	}
	return n
}

type Dispatcher struct {
	senders  []transport.Sender
	opts     Options
	log      logx.Logger
	limiters map[transport.Platform]*rate.Limiter
}

func New(senders []transport.Sender, opts Options, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.PerSendTimeout <= 0 {
		opts.PerSendTimeout = 30 * time.Second
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	limiters := make(map[transport.Platform]*rate.Limiter, len(senders))
	for _, s := range senders {
		limiters[s.Platform()] = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return &Dispatcher{senders: senders, opts: opts, log: log, limiters: limiters}
}

// Cycle composes and delivers digests for the given items. tzOf resolves a
// user ID to an IANA timezone (empty means unknown). now is injected so the
// composed text is deterministic for the caller.
func (d *Dispatcher) Cycle(ctx context.Context, items []deadline.Item, binds []bindings.Binding, groups []GroupTarget, tzOf func(string) string, now time.Time) *Report {
	rep := &Report{
		ID:        uuid.NewString(),
		StartedAt: now,
		Platforms: make(map[transport.Platform]*PlatformReport, len(d.senders)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(out transport.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		pr := rep.Platforms[out.Platform]
		if pr == nil {
			pr = &PlatformReport{}
			rep.Platforms[out.Platform] = pr
		}
		pr.Attempted++
		if out.OK {
			pr.Succeeded++
		} else {
			pr.Failures = append(pr.Failures, out)
		}
	}

	for _, sender := range d.senders {
		p := sender.Platform()
		rep.Platforms[p] = &PlatformReport{}

		// Credential problems short-circuit the platform before any network
		// call and are reported exactly once.
		if err := sender.Ready(); err != nil {
			record(transport.Failed(p, "", false, err))
			d.log.Warn("platform skipped", logx.String("platform", string(p)), logx.Err(err))
			continue
		}

		byUser := bindings.ActiveForPlatform(binds, p)
		for userID, b := range byUser {
			personal := deadline.ForAssignee(items, userID)
			if len(personal) == 0 {
				continue
			}
			tz := tzOf(userID)
			if tz == "" {
				tz = d.opts.DefaultTimezone
			}
			text := digest.Compose(personal, tz, now)
			wg.Add(1)
			go d.send(ctx, &wg, record, func(c context.Context) transport.Outcome {
				return sender.SendToRecipient(c, b.ExternalID, text)
			}, p)
		}

		for _, g := range groups {
			if g.Platform != p || len(items) == 0 {
				continue
			}
			tz := g.Timezone
			if tz == "" {
				tz = d.opts.DefaultTimezone
			}
			text := digest.Compose(items, tz, now)
			target := g.TargetID
			wg.Add(1)
			go d.send(ctx, &wg, record, func(c context.Context) transport.Outcome {
				return sender.SendToGroup(c, target, text)
			}, p)
		}
	}

	wg.Wait()
	rep.FinishedAt = time.Now()

	for p, pr := range rep.Platforms {
		if len(pr.Failures) > 0 {
			d.log.Warn("dispatch finished with failures",
				logx.String("report", rep.ID), logx.String("platform", string(p)),
				logx.Int("attempted", pr.Attempted), logx.Int("failed", len(pr.Failures)))
		} else if pr.Attempted > 0 {
			d.log.Info("dispatch finished",
				logx.String("report", rep.ID), logx.String("platform", string(p)),
				logx.Int("attempted", pr.Attempted))
		}
	}
	return rep
}

// send wraps a single adapter call: rate limit, bounded timeout, panic
// containment. A panicking adapter costs one failed outcome, nothing more.
func (d *Dispatcher) send(ctx context.Context, wg *sync.WaitGroup, record func(transport.Outcome), call func(context.Context) transport.Outcome, p transport.Platform) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in channel adapter", logx.String("platform", string(p)), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			record(transport.Failed(p, "", false, fmt.Errorf("adapter panic: %v", r)))
		}
	}()

	if lim := d.limiters[p]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			record(transport.Failed(p, "", false, err))
			return
		}
	}
	sctx, cancel := context.WithTimeout(ctx, d.opts.PerSendTimeout)
	defer cancel()
	record(call(sctx))
}
