package session

import (
	"errors"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/models"
)

// Kind of session state as seen by consumers
type Kind int

const (
	Unauthenticated Kind = iota
	Pending
	Authenticated
	Failed
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Pending:
		return "pending"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the outcome of the last resolution attempt.
// User is set only for Authenticated, Err carries the failure that led to Failed or Unauthenticated.
type State struct {
	Kind Kind
	User models.User
	Err  error
}

// Phase of the resolver state machine
type Phase int

const (
	PhaseNoToken Phase = iota
	PhaseResolving
	PhaseValid
	PhaseRecovering
	PhaseDenied
)

func (p Phase) String() string {
	switch p {
	case PhaseNoToken:
		return "no-token"
	case PhaseResolving:
		return "resolving"
	case PhaseValid:
		return "valid"
	case PhaseRecovering:
		return "recovering"
	case PhaseDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Transition is delivered to subscribers on every phase change
type Transition struct {
	From  Phase
	To    Phase
	State State
}

// stateFor projects phase onto the consumer facing state
func stateFor(p Phase, user models.User, err error) State {
	switch p {
	case PhaseResolving:
		return State{Kind: Pending}
	case PhaseValid:
		return State{Kind: Authenticated, User: user}
	case PhaseRecovering:
		return State{Kind: Failed}
	case PhaseDenied:
		// Rejected refresh token means the user has to log in again, not that something broke
		if err == nil || errors.Is(err, apperrors.ErrRefreshRejected) {
			return State{Kind: Unauthenticated, Err: err}
		}
		return State{Kind: Failed, Err: err}
	default:
		return State{Kind: Unauthenticated}
	}
}
