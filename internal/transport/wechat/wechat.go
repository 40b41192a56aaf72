// Package wechat is a placeholder channel adapter. The WeChat integration
// has no live endpoint yet; every send reports an "unavailable" outcome
// without attempting a network call.
package wechat

import (
	"context"

	"duebot/internal/transport"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Platform() transport.Platform { return transport.PlatformWeChat }

func (a *Adapter) Ready() error { return transport.ErrUnavailable }

func (a *Adapter) Check(ctx context.Context) error { return transport.ErrUnavailable }

func (a *Adapter) SendToRecipient(ctx context.Context, externalID, text string) transport.Outcome {
	return transport.Failed(transport.PlatformWeChat, externalID, false, transport.ErrUnavailable)
}

func (a *Adapter) SendToGroup(ctx context.Context, groupID, text string) transport.Outcome {
	return transport.Failed(transport.PlatformWeChat, groupID, true, transport.ErrUnavailable)
}
