package gate

import (
	"fmt"

	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

// State is the per-session state machine position:
//
//	Idle → RangeBuilding → Watching → (Placing | Gated | Closed)
//
// Placing resolves into Closed; Gated and Closed are terminal. The closed
// set of states keeps transition handling exhaustively checkable.
type State int

const (
	StateIdle State = iota
	StateRangeBuilding
	StateWatching
	StatePlacing
	StateGated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRangeBuilding:
		return "RANGE_BUILDING"
	case StateWatching:
		return "WATCHING"
	case StatePlacing:
		return "PLACING"
	case StateGated:
		return "GATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Gate enforces overtrading prevention for one trading session: at most one
// placement attempt, an externally supplied cooldown lockout, and a single
// finalized outcome.
type Gate struct {
	state     State
	attempted bool
	cooldown  bool
	outcome   session.Outcome
	reason    string
}

// New creates a gate. cooldown forces Gated at session start; it is set by
// the operator when a loss-streak or daily-loss condition holds.
func New(cooldown bool) *Gate {
	return &Gate{state: StateIdle, cooldown: cooldown}
}

func (g *Gate) State() State { return g.state }

// Outcome returns the finalized session outcome, empty until terminal.
func (g *Gate) Outcome() session.Outcome { return g.outcome }

// Reason returns the terminal reason recorded with the outcome, if any.
func (g *Gate) Reason() string { return g.reason }

// Attempted reports whether a placement attempt was made this session.
func (g *Gate) Attempted() bool { return g.attempted }

// Begin starts the session. Under cooldown the session is locked out
// immediately and finalized as gated-out.
func (g *Gate) Begin() error {
	if g.state != StateIdle {
		return g.badTransition("begin")
	}
	if g.cooldown {
		g.state = StateGated
		g.finalize(session.OutcomeGatedOut, "cooldown")
		return nil
	}
	g.state = StateRangeBuilding
	return nil
}

// StartWatching moves into the breakout watch after the range freezes.
func (g *Gate) StartWatching() error {
	if g.state != StateRangeBuilding {
		return g.badTransition("start_watching")
	}
	g.state = StateWatching
	return nil
}

// TryPlace claims the session's single placement attempt. It refuses once
// an attempt has been made or outside Watching, so a second breakout in the
// same session can never reach the broker.
func (g *Gate) TryPlace() error {
	if g.state != StateWatching || g.attempted {
		return g.badTransition("try_place")
	}
	g.attempted = true
	g.state = StatePlacing
	return nil
}

// ResolvePlacement finalizes the placement attempt. Whether the broker
// accepted or rejected, the session is closed; there is no re-entry into
// Watching.
func (g *Gate) ResolvePlacement(outcome session.Outcome, reason string) error {
	if g.state != StatePlacing {
		return g.badTransition("resolve_placement")
	}
	g.state = StateClosed
	g.finalize(outcome, reason)
	return nil
}

// Close finalizes the session from any non-terminal state, e.g. no-range
// after an invalid freeze or no-breakout when the watch window elapses.
func (g *Gate) Close(outcome session.Outcome, reason string) {
	switch g.state {
	case StateGated, StateClosed:
		return
	}
	g.state = StateClosed
	g.finalize(outcome, reason)
}

// ForceGated locks the session out, e.g. when connectivity does not recover
// before the watch window elapses.
func (g *Gate) ForceGated(reason string) {
	switch g.state {
	case StateGated, StateClosed:
		return
	}
	g.state = StateGated
	g.finalize(session.OutcomeGatedOut, reason)
}

// finalize records the outcome exactly once.
func (g *Gate) finalize(outcome session.Outcome, reason string) {
	if g.outcome != session.OutcomeNone {
		return
	}
	g.outcome = outcome
	g.reason = reason
}

func (g *Gate) badTransition(op string) error {
	return fmt.Errorf("gate: %s not allowed in state %s", op, g.state)
}
