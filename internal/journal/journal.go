package journal

import (
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

// SessionRecord is the terminal record of one trading session.
type SessionRecord struct {
	Symbol     string
	Date       string // exchange-local YYYYMMDD
	Outcome    session.Outcome
	Reason     string
	Direction  string // breakout direction, when any
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	TicketID   string
	ClosedAt   time.Time
}

// TransitionRecord is one state-machine transition, kept for audit and
// offline replay of a session.
type TransitionRecord struct {
	Symbol string
	Date   string
	From   string
	To     string
	Detail string
	At     time.Time
}

// Journal persists session outcomes and transitions. The engine writes each
// outcome exactly once, and consults Session at the start of a day so a
// restart never re-runs a session that already resolved.
type Journal interface {
	RecordSession(rec SessionRecord) error
	RecordTransition(rec TransitionRecord) error
	Session(symbol, date string) (SessionRecord, bool, error)
	Sessions() ([]SessionRecord, error)
	Close() error
}

// Nop is a journal that discards everything, for runs without persistence.
type Nop struct{}

func (Nop) RecordSession(SessionRecord) error       { return nil }
func (Nop) RecordTransition(TransitionRecord) error { return nil }
func (Nop) Session(string, string) (SessionRecord, bool, error) {
	return SessionRecord{}, false, nil
}
func (Nop) Sessions() ([]SessionRecord, error) { return nil, nil }
func (Nop) Close() error                       { return nil }
