// Package transport defines the platform-neutral contract every messaging
// channel adapter implements, plus the per-send outcome record the
// dispatcher aggregates.
package transport

import (
	"context"
	"errors"
)

type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformLine     Platform = "line"
	PlatformWeChat   Platform = "wechat"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformTelegram, PlatformLine, PlatformWeChat:
		return true
	}
	return false
}

// ErrNotConfigured marks a missing or unusable credential. Adapters return
// it from Ready() so callers can short-circuit before any network call.
var ErrNotConfigured = errors.New("channel not configured")

// ErrUnavailable marks a channel whose integration is a deliberate
// placeholder (no live endpoint yet).
var ErrUnavailable = errors.New("channel not yet available")

// Outcome is the result of exactly one send attempt. Failures are recorded,
// never raised: adapters convert every error into an Outcome.
type Outcome struct {
	Platform    Platform `json:"platform"`
	RecipientID string   `json:"recipient_id"`
	Group       bool     `json:"group,omitempty"`
	OK          bool     `json:"ok"`
	Err         string   `json:"err,omitempty"`
}

func Delivered(p Platform, recipient string, group bool) Outcome {
	return Outcome{Platform: p, RecipientID: recipient, Group: group, OK: true}
}

func Failed(p Platform, recipient string, group bool, err error) Outcome {
	o := Outcome{Platform: p, RecipientID: recipient, Group: group}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}

// Sender is the uniform capability of a channel adapter.
//
// SendToRecipient and SendToGroup never panic and never return an error:
// delivery failures, credential problems and transport errors all come back
// as a failed Outcome. Ready reports credential state without touching the
// network; Check is a live connectivity probe for health surfaces.
type Sender interface {
	Platform() Platform
	Ready() error
	Check(ctx context.Context) error
	SendToRecipient(ctx context.Context, externalID, text string) Outcome
	SendToGroup(ctx context.Context, groupID, text string) Outcome
}
