// Package telegram implements the Telegram channel adapter on top of
// telebot. Both personal and group recipients are plain chat IDs.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"duebot/internal/transport"
	"duebot/pkg/logx"
)

type Config struct {
	Token string
	// AdminChatID receives forwarded warn+ log records (see pkg/logx).
	// 0 disables admin notifications.
	AdminChatID int64
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// New builds the adapter. A blank token is not an error here: the adapter
// stays constructible so the dispatcher can report the credential problem
// as a per-platform outcome instead of failing bootstrap.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log}
	if strings.TrimSpace(cfg.Token) == "" {
		return a, nil
	}
	// Offline keeps NewBot from issuing getMe during construction; the
	// connectivity probe is explicit via Check.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	a.bot = b
	return a, nil
}

func (a *Adapter) Platform() transport.Platform { return transport.PlatformTelegram }

func (a *Adapter) Ready() error {
	if a.bot == nil {
		return fmt.Errorf("telegram: bot token is empty: %w", transport.ErrNotConfigured)
	}
	return nil
}

// Check calls getMe to verify the token against the live API.
func (a *Adapter) Check(ctx context.Context) error {
	if err := a.Ready(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Raw("getMe", nil)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: getMe: %w", err)
		}
		return nil
	}
}

func (a *Adapter) SendToRecipient(ctx context.Context, externalID, text string) transport.Outcome {
	return a.send(ctx, externalID, text, false)
}

func (a *Adapter) SendToGroup(ctx context.Context, groupID, text string) transport.Outcome {
	return a.send(ctx, groupID, text, true)
}

func (a *Adapter) send(ctx context.Context, id, text string, group bool) transport.Outcome {
	if err := a.Ready(); err != nil {
		return transport.Failed(transport.PlatformTelegram, id, group, err)
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return transport.Failed(transport.PlatformTelegram, id, group,
			fmt.Errorf("telegram: invalid chat id %q", id))
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		done <- err
	}()
	select {
	case <-ctx.Done():
		return transport.Failed(transport.PlatformTelegram, id, group, ctx.Err())
	case err := <-done:
		if err != nil {
			a.log.Warn("telegram send failed", logx.String("chat", id), logx.Bool("group", group), logx.Err(err))
			return transport.Failed(transport.PlatformTelegram, id, group, err)
		}
		return transport.Delivered(transport.PlatformTelegram, id, group)
	}
}

// NotifyAdmin implements logx.AdminNotifier.
func (a *Adapter) NotifyAdmin(ctx context.Context, text string) error {
	if a.cfg.AdminChatID == 0 {
		return nil
	}
	out := a.send(ctx, strconv.FormatInt(a.cfg.AdminChatID, 10), text, true)
	if !out.OK {
		return fmt.Errorf("telegram: admin notify: %s", out.Err)
	}
	return nil
}
