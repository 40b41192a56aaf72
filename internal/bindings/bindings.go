// Package bindings models the association between an internal user and a
// channel-specific recipient identifier. The registry itself is owned by
// the host application; this process only ever reads active bindings.
package bindings

import (
	"context"

	"duebot/internal/transport"
)

type Binding struct {
	UserID      string             `json:"user_id"`
	Platform    transport.Platform `json:"platform"`
	ExternalID  string             `json:"external_id"`
	DisplayName string             `json:"display_name,omitempty"`
	Active      bool               `json:"active"`
}

// Registry supplies the current binding set. Implementations must return
// a fresh slice per call; callers may filter it in place.
type Registry interface {
	Bindings(ctx context.Context) ([]Binding, error)
}

// Static is a fixed, in-memory registry (config-driven deployments, tests).
type Static struct{ list []Binding }

func NewStatic(list []Binding) *Static {
	return &Static{list: list}
}

func (s *Static) Bindings(ctx context.Context) ([]Binding, error) {
	out := make([]Binding, len(s.list))
	copy(out, s.list)
	return out, nil
}

// ActiveForPlatform indexes the active bindings of one platform by user ID.
// A user with several bindings on the same platform keeps the first one.
func ActiveForPlatform(list []Binding, p transport.Platform) map[string]Binding {
	out := make(map[string]Binding)
	for _, b := range list {
		if !b.Active || b.Platform != p {
			continue
		}
		if _, ok := out[b.UserID]; !ok {
			out[b.UserID] = b
		}
	}
	return out
}
