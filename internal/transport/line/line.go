// Package line implements the LINE Messaging API channel adapter.
//
// Personal and group sends both go through the push endpoint; the group
// identifier is collected out-of-band and configured as a plain string.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"duebot/internal/transport"
	"duebot/pkg/logx"
)

const defaultBaseURL = "https://api.line.me"

// LINE rejects text messages above this length.
const maxTextLen = 5000

type Config struct {
	ChannelToken string
	// BaseURL overrides the API host (tests). Empty means api.line.me.
	BaseURL string
}

type Adapter struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Adapter) Platform() transport.Platform { return transport.PlatformLine }

func (a *Adapter) Ready() error {
	if strings.TrimSpace(a.cfg.ChannelToken) == "" {
		return fmt.Errorf("line: channel access token is empty: %w", transport.ErrNotConfigured)
	}
	return nil
}

// Check probes the bot info endpoint to validate the token.
func (a *Adapter) Check(ctx context.Context) error {
	if err := a.Ready(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL()+"/v2/bot/info", nil)
	if err != nil {
		return fmt.Errorf("line: build info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.ChannelToken)
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("line: info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("line: info: unexpected status %s", resp.Status)
	}
	return nil
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
}

func (a *Adapter) SendToRecipient(ctx context.Context, externalID, text string) transport.Outcome {
	return a.push(ctx, externalID, text, false)
}

func (a *Adapter) SendToGroup(ctx context.Context, groupID, text string) transport.Outcome {
	return a.push(ctx, groupID, text, true)
}

func (a *Adapter) push(ctx context.Context, to, text string, group bool) transport.Outcome {
	if err := a.Ready(); err != nil {
		return transport.Failed(transport.PlatformLine, to, group, err)
	}
	if len(text) > maxTextLen {
		// Cut on a rune boundary; a split rune would send invalid UTF-8.
		cut := maxTextLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	body, err := json.Marshal(pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return transport.Failed(transport.PlatformLine, to, group, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return transport.Failed(transport.PlatformLine, to, group, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.ChannelToken)

	resp, err := a.http.Do(req)
	if err != nil {
		a.log.Warn("line push failed", logx.String("to", to), logx.Err(err))
		return transport.Failed(transport.PlatformLine, to, group, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg := readAPIError(resp.Body)
		err := fmt.Errorf("line: push: status %s: %s", resp.Status, msg)
		a.log.Warn("line push rejected", logx.String("to", to), logx.String("status", resp.Status))
		return transport.Failed(transport.PlatformLine, to, group, err)
	}
	return transport.Delivered(transport.PlatformLine, to, group)
}

func (a *Adapter) baseURL() string {
	if strings.TrimSpace(a.cfg.BaseURL) != "" {
		return strings.TrimRight(a.cfg.BaseURL, "/")
	}
	return defaultBaseURL
}

func readAPIError(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return "no body"
	}
	var e apiError
	if json.Unmarshal(b, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(b))
}
