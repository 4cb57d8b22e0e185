package session

import "time"

// Outcome is the terminal record of a trading session. Exactly one outcome
// is written per session.
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeNoRange       Outcome = "no-range"
	OutcomeNoBreakout    Outcome = "no-breakout"
	OutcomeOrderPlaced   Outcome = "order-placed"
	OutcomeOrderRejected Outcome = "order-rejected"
	OutcomeGatedOut      Outcome = "gated-out"
)

// TradingSession identifies one instrument-day and its window bounds.
type TradingSession struct {
	Symbol   string
	Date     string // exchange-local date tag, YYYYMMDD
	Window   Window
	Started  time.Time
	Outcome  Outcome
	Reason   string // terminal error category or broker reason, when any
	TicketID string // broker ticket, when an order was placed
}

// Tag returns the per-session order tag, e.g. ORB20260826. Orders carry it
// so a restarted process can recognize its own working orders.
func (s *TradingSession) Tag() string {
	return "ORB" + s.Date
}
