// Package guard decides what a protected view shows for a session state.
package guard

import (
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/session"
)

type Action int

const (
	RedirectToEntry Action = iota
	RenderPending
	RenderProtected
)

func (a Action) String() string {
	switch a {
	case RenderProtected:
		return "render-protected"
	case RenderPending:
		return "render-pending"
	default:
		return "redirect-to-entry"
	}
}

// Decision for a protected view, User is set only for RenderProtected
type Decision struct {
	Action Action
	User   models.User
}

// Decide projects session state onto a view decision without any I/O
func Decide(state session.State) Decision {
	switch state.Kind {
	case session.Authenticated:
		return Decision{Action: RenderProtected, User: state.User}
	case session.Pending:
		return Decision{Action: RenderPending}
	default:
		return Decision{Action: RedirectToEntry}
	}
}
