// Package trigger bridges host-application "send now" requests into the
// scheduler. The host publishes small JSON messages onto an AMQP queue;
// each one becomes a manual trigger. This keeps the boundary to the data
// holder a serializable message, never a shared object reference.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"duebot/internal/services/scheduler"
	"duebot/pkg/logx"
)

const defaultQueue = "duebot.send-now"

type Config struct {
	URL   string
	Queue string
}

// Message is the wire format of one "send now" request.
type Message struct {
	Scope string `json:"scope,omitempty"`
	Force bool   `json:"force,omitempty"`
}

type Bridge struct {
	cfg Config
	log logx.Logger
	svc *scheduler.Service
}

func New(cfg Config, svc *scheduler.Service, log logx.Logger) *Bridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Queue == "" {
		cfg.Queue = defaultQueue
	}
	return &Bridge{cfg: cfg, log: log, svc: svc}
}

// Run consumes the queue until ctx is done, reconnecting with capped
// exponential backoff when the broker connection drops.
func (b *Bridge) Run(ctx context.Context) error {
	const (
		backoffBase = time.Second
		backoffCap  = 30 * time.Second
	)
	backoff := backoffBase
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := b.consume(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		b.log.Warn("trigger consumer stopped; reconnecting", logx.Err(err), logx.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < backoffCap {
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(b.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	b.log.Info("trigger consumer started", logx.String("queue", b.cfg.Queue))

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cerr := <-closed:
			if cerr == nil {
				return errors.New("amqp connection closed")
			}
			return cerr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			b.handle(ctx, d)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// Poison message: ack and drop, nothing will fix it on redelivery.
		b.log.Warn("dropping malformed trigger message", logx.Err(err))
		_ = d.Ack(false)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	res, err := b.svc.TriggerNow(tctx, msg.Scope, msg.Force)
	cancel()
	if err != nil {
		b.log.Warn("trigger failed", logx.String("scope", msg.Scope), logx.Err(err))
		// Requeue only when the scheduler was unavailable.
		_ = d.Nack(false, errors.Is(err, scheduler.ErrNotRunning))
		return
	}
	if res.Ran {
		b.log.Info("manual trigger dispatched",
			logx.String("scope", msg.Scope),
			logx.Int("attempted", res.Report.Attempted()),
			logx.Int("failed", res.Report.Failed()))
	} else {
		b.log.Info("manual trigger skipped", logx.String("scope", msg.Scope), logx.String("reason", string(res.Skip)))
	}
	_ = d.Ack(false)
}
