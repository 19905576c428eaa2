package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a session.
type State int

const (
	// Unauthenticated: no tokens are held.
	Unauthenticated State = iota
	// Authenticated: an access token is available.
	Authenticated
	// Refreshing: one refresh is in flight and callers queue behind it.
	Refreshing
	// Expired: the last refresh failed. Only a new login leaves this state.
	Expired
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a state transition.
type Event int

const (
	LoginSucceeded Event = iota
	RefreshStarted
	RefreshSucceeded
	RefreshFailed
	LoggedOut
)

func (e Event) String() string {
	switch e {
	case LoginSucceeded:
		return "login_succeeded"
	case RefreshStarted:
		return "refresh_started"
	case RefreshSucceeded:
		return "refresh_succeeded"
	case RefreshFailed:
		return "refresh_failed"
	case LoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("session: invalid state transition")

var transitions = map[State]map[Event]State{
	Unauthenticated: {
		LoginSucceeded: Authenticated,
		LoggedOut:      Unauthenticated,
	},
	Authenticated: {
		LoginSucceeded: Authenticated,
		RefreshStarted: Refreshing,
		LoggedOut:      Unauthenticated,
	},
	Refreshing: {
		RefreshSucceeded: Authenticated,
		RefreshFailed:    Expired,
		LoggedOut:        Unauthenticated,
	},
	Expired: {
		LoginSucceeded: Authenticated,
		LoggedOut:      Unauthenticated,
	},
}

// Next returns the state reached from s on ev.
func Next(s State, ev Event) (State, error) {
	to, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, ev)
	}
	return to, nil
}

// Transition records one state change.
type Transition struct {
	From  State
	To    State
	Event Event
}
