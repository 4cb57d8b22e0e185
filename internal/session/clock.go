package session

import (
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
)

// Phase is where an instant falls within a trading day.
type Phase int

const (
	PhasePreRange Phase = iota
	PhaseInRange
	PhaseWatching
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhasePreRange:
		return "PRE_RANGE"
	case PhaseInRange:
		return "IN_RANGE"
	case PhaseWatching:
		return "WATCHING"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Clock resolves instants against an exchange calendar. It is a pure
// function of (calendar, instant): the session open is anchored in the
// exchange timezone, so a DST shift in the home timezone never moves it.
type Clock struct {
	exchange    *time.Location
	home        *time.Location
	openHour    int
	openMinute  int
	rangeWindow time.Duration
	watchWindow time.Duration
	tradingDays map[time.Weekday]bool
	holidays    map[string]bool // YYYY-MM-DD in exchange-local dates
}

// NewClock builds a Clock from the session configuration.
func NewClock(cfg config.SessionConfig) (*Clock, error) {
	exchange, err := time.LoadLocation(cfg.ExchangeTimezone)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "session_clock", "load_exchange_tz")
	}
	home, err := time.LoadLocation(cfg.HomeTimezone)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "session_clock", "load_home_tz")
	}
	hour, minute, err := config.ParseOpenTime(cfg.Open)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "session_clock", "parse_open")
	}

	days := make(map[time.Weekday]bool, len(cfg.TradingDays))
	for _, d := range cfg.TradingDays {
		wd, err := config.ParseWeekday(d)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryConfiguration, "session_clock", "parse_weekday")
		}
		days[wd] = true
	}

	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays[h] = true
	}

	return &Clock{
		exchange:    exchange,
		home:        home,
		openHour:    hour,
		openMinute:  minute,
		rangeWindow: time.Duration(cfg.RangeWindowMins) * time.Minute,
		watchWindow: time.Duration(cfg.WatchWindowMins) * time.Minute,
		tradingDays: days,
		holidays:    holidays,
	}, nil
}

// Window holds the absolute bounds of one trading day's ORB windows.
type Window struct {
	Date       string // exchange-local date tag, YYYYMMDD
	RangeStart time.Time
	RangeEnd   time.Time
	WatchEnd   time.Time
	DayEnd     time.Time // 23:59 exchange-local; pending orders expire here
}

// Window resolves the ORB windows for the exchange day containing t.
// The bounds are absolute instants; converting them to any other timezone
// does not move them.
func (c *Clock) Window(t time.Time) Window {
	local := t.In(c.exchange)
	y, m, d := local.Date()
	start := time.Date(y, m, d, c.openHour, c.openMinute, 0, 0, c.exchange)
	return Window{
		Date:       start.Format("20060102"),
		RangeStart: start,
		RangeEnd:   start.Add(c.rangeWindow),
		WatchEnd:   start.Add(c.rangeWindow + c.watchWindow),
		DayEnd:     time.Date(y, m, d, 23, 59, 0, 0, c.exchange),
	}
}

// TradingDay reports whether the exchange day containing t is tradeable.
func (c *Clock) TradingDay(t time.Time) bool {
	local := t.In(c.exchange)
	if !c.tradingDays[local.Weekday()] {
		return false
	}
	return !c.holidays[local.Format("2006-01-02")]
}

// PhaseAt classifies t within its trading day. The four phases partition
// the day: weekends and holidays are Closed in their entirety.
func (c *Clock) PhaseAt(t time.Time) Phase {
	if !c.TradingDay(t) {
		return PhaseClosed
	}
	w := c.Window(t)
	switch {
	case t.Before(w.RangeStart):
		return PhasePreRange
	case t.Before(w.RangeEnd):
		return PhaseInRange
	case t.Before(w.WatchEnd):
		return PhaseWatching
	default:
		return PhaseClosed
	}
}

// HomeTime converts t to the configured home timezone for reporting.
func (c *Clock) HomeTime(t time.Time) time.Time {
	return t.In(c.home)
}

// ExchangeTime converts t to the exchange timezone.
func (c *Clock) ExchangeTime(t time.Time) time.Time {
	return t.In(c.exchange)
}
