package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/internal/exchange/paper"
	"github.com/ducminhle1904/orb-breakout-bot/internal/journal"
	"github.com/ducminhle1904/orb-breakout-bot/internal/monitoring"
	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// sliceFeed replays a fixed tick sequence, closing the stream afterwards.
type sliceFeed struct {
	ticks []types.Tick
	// when set, cancelAfter fires this cancel func after sending that many
	// ticks, before sending the rest
	cancel      context.CancelFunc
	cancelAfter int
}

func (f *sliceFeed) Ticks(ctx context.Context) (<-chan types.Tick, error) {
	out := make(chan types.Tick)
	go func() {
		defer close(out)
		for i, t := range f.ticks {
			if f.cancel != nil && i == f.cancelAfter {
				f.cancel()
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// memJournal records calls for assertions.
type memJournal struct {
	sessions    []journal.SessionRecord
	transitions []journal.TransitionRecord
}

func (j *memJournal) RecordSession(rec journal.SessionRecord) error {
	j.sessions = append(j.sessions, rec)
	return nil
}

func (j *memJournal) RecordTransition(rec journal.TransitionRecord) error {
	j.transitions = append(j.transitions, rec)
	return nil
}

func (j *memJournal) Session(symbol, date string) (journal.SessionRecord, bool, error) {
	for _, rec := range j.sessions {
		if rec.Symbol == symbol && rec.Date == date {
			return rec, true, nil
		}
	}
	return journal.SessionRecord{}, false, nil
}

func (j *memJournal) Sessions() ([]journal.SessionRecord, error) { return j.sessions, nil }
func (j *memJournal) Close() error                               { return nil }

// downBroker answers the order checks but fails every trading call with a
// connectivity error.
type downBroker struct{}

func (downBroker) InstrumentConstraints(context.Context, string) (broker.Constraints, error) {
	return broker.Constraints{}, apperrors.NewConnectivityFailure("test", "get_instruments", errors.New("unreachable"))
}

func (downBroker) PlaceStopOrder(context.Context, broker.NormalizedOrder) (broker.Placement, error) {
	return broker.Placement{}, apperrors.NewConnectivityFailure("test", "place_order", errors.New("unreachable"))
}

func (downBroker) HasWorkingOrder(context.Context, string, string) (bool, error) {
	return false, nil
}

func (downBroker) CancelOrder(context.Context, string, string) error {
	return apperrors.NewConnectivityFailure("test", "cancel_order", errors.New("unreachable"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Instrument.Symbol = "BTCUSDT"
	cfg.Instrument.Point = 0.01
	cfg.Session.ExchangeTimezone = "UTC"
	cfg.Session.Open = "09:30"
	cfg.Session.RangeWindowMins = 15
	cfg.Session.WatchWindowMins = 60
	cfg.Breakout.ConfirmationMargin = 0.20
	cfg.Breakout.ConfirmationCount = 1
	cfg.Risk.RMultiple = 2
	cfg.Risk.AccountRiskAmount = 525
	cfg.Risk.VolumePrecision = 2
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func testClock(t *testing.T, cfg *config.Config) *session.Clock {
	t.Helper()
	clock, err := session.NewClock(cfg.Session)
	require.NoError(t, err)
	return clock
}

// tk builds a tick on the test trading day, 2026-01-05 (a Monday).
func tk(hh, mm, ss int, bid, ask float64) types.Tick {
	return types.Tick{
		Symbol:    "BTCUSDT",
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Date(2026, 1, 5, hh, mm, ss, 0, time.UTC),
	}
}

func looseConstraints() broker.Constraints {
	return broker.Constraints{TickSize: 0.01, MinStopDistance: 0.5, LotStep: 0.01, MinVolume: 0.01}
}

// rangeTicks establish a 100.00..105.00 opening range.
func rangeTicks() []types.Tick {
	return []types.Tick{
		tk(9, 31, 0, 100, 100),
		tk(9, 35, 0, 103, 103),
		tk(9, 40, 0, 105, 105),
	}
}

func newTestEngine(t *testing.T, brk broker.Broker, jrnl journal.Journal, ticks []types.Tick, cooldown bool) *Engine {
	t.Helper()
	cfg := testConfig(t)
	eng := New(Options{
		Config:   cfg,
		Clock:    testClock(t, cfg),
		Broker:   brk,
		Feed:     &sliceFeed{ticks: ticks},
		Journal:  jrnl,
		Cooldown: cooldown,
	})
	return eng
}

func TestBreakoutPlacesOrder(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(), tk(9, 46, 0, 105.15, 105.25))
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	sess := eng.Session()
	require.NotNil(t, sess)
	assert.Equal(t, session.OutcomeOrderPlaced, sess.Outcome)
	assert.Equal(t, "PAPER-000001", sess.TicketID)

	orders := brk.Orders()
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, types.SideBuy, order.Direction)
	assert.Equal(t, 105.25, order.Entry)
	assert.Equal(t, 100.00, order.StopLoss)
	assert.Equal(t, 115.75, order.TakeProfit)
	assert.InDelta(t, 100.0, order.Volume, 1e-9)
	assert.InDelta(t, 2.0, order.RewardDistance()/order.RiskDistance(), 1e-9)
	assert.Regexp(t, `^ORB20260105-`, order.ClientTag)
	assert.Equal(t, time.Date(2026, 1, 5, 23, 59, 0, 0, time.UTC), order.Expiry.UTC())

	require.Len(t, jrnl.sessions, 1)
	assert.Equal(t, session.OutcomeOrderPlaced, jrnl.sessions[0].Outcome)
	assert.Equal(t, "20260105", jrnl.sessions[0].Date)
}

func TestDownBreakoutPlacesSellOrder(t *testing.T) {
	brk := paper.New(looseConstraints())

	ticks := append(rangeTicks(), tk(9, 50, 0, 99.75, 99.85))
	eng := newTestEngine(t, brk, &memJournal{}, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	orders := brk.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideSell, orders[0].Direction)
	assert.Equal(t, 99.75, orders[0].Entry)
	assert.Equal(t, 105.00, orders[0].StopLoss)
	assert.InDelta(t, 2.0, orders[0].RewardDistance()/orders[0].RiskDistance(), 1e-9)
}

func TestCoarseTickRejectsWithoutBrokerCall(t *testing.T) {
	// a 0.50 price tick distorts reward/risk past the tolerance; the
	// attempt resolves locally and the broker never sees an order
	constraints := looseConstraints()
	constraints.TickSize = 0.5
	brk := paper.New(constraints)
	jrnl := &memJournal{}

	ticks := append(rangeTicks(), tk(9, 46, 0, 105.20, 105.30))
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Empty(t, brk.Orders())
	sess := eng.Session()
	require.NotNil(t, sess)
	assert.Equal(t, session.OutcomeOrderRejected, sess.Outcome)
	assert.Equal(t, string(apperrors.CategoryRiskRatio), sess.Reason)

	require.Len(t, jrnl.sessions, 1)
	assert.Equal(t, session.OutcomeOrderRejected, jrnl.sessions[0].Outcome)
}

func TestSecondBreakoutSameSessionIgnored(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(),
		tk(9, 46, 0, 105.15, 105.25),
		// the session is resolved; later excursions change nothing
		tk(9, 50, 0, 106.00, 106.10),
		tk(9, 55, 0, 99.00, 99.10),
	)
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Len(t, brk.Orders(), 1)
	assert.Equal(t, session.OutcomeOrderPlaced, eng.Session().Outcome)
	assert.Equal(t, "PAPER-000001", eng.Session().TicketID)
	assert.Len(t, jrnl.sessions, 1)
}

func TestNoBreakoutWhenWatchWindowElapses(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(),
		tk(9, 50, 0, 104.00, 104.10), // inside the range
		tk(10, 46, 0, 104.00, 104.10), // past the watch window
	)
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Empty(t, brk.Orders())
	assert.Equal(t, session.OutcomeNoBreakout, eng.Session().Outcome)
	require.Len(t, jrnl.sessions, 1)
}

func TestNoRangeWhenRangeWindowEmpty(t *testing.T) {
	brk := paper.New(looseConstraints())

	// the stream starts mid-day with nothing observed in the range window
	ticks := []types.Tick{tk(9, 50, 0, 104.00, 104.10)}
	eng := newTestEngine(t, brk, &memJournal{}, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, session.OutcomeNoRange, eng.Session().Outcome)
	assert.Empty(t, brk.Orders())
}

func TestFlatRangeYieldsNoRange(t *testing.T) {
	brk := paper.New(looseConstraints())

	ticks := []types.Tick{
		tk(9, 31, 0, 100, 100),
		tk(9, 40, 0, 100, 100),
		tk(9, 46, 0, 105.15, 105.25),
	}
	eng := newTestEngine(t, brk, &memJournal{}, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, session.OutcomeNoRange, eng.Session().Outcome)
	assert.Empty(t, brk.Orders())
}

func TestCooldownGatesSession(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(), tk(9, 46, 0, 105.15, 105.25))
	eng := newTestEngine(t, brk, jrnl, ticks, true)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, session.OutcomeGatedOut, eng.Session().Outcome)
	assert.Empty(t, brk.Orders())
	require.Len(t, jrnl.sessions, 1)
	assert.Equal(t, session.OutcomeGatedOut, jrnl.sessions[0].Outcome)
}

func TestStaleAndMalformedTicksDropped(t *testing.T) {
	brk := paper.New(looseConstraints())

	breach := tk(9, 40, 0, 105.95, 106.05) // same timestamp as the last range tick
	ticks := append(rangeTicks(),
		breach,                      // stale: not newer than 09:40:00
		tk(9, 46, 0, 104.10, 104.0), // crossed quote
		tk(9, 47, 0, -1, 104.10),    // non-positive bid
	)
	eng := newTestEngine(t, brk, &memJournal{}, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	// the dropped ticks never reached the tracker or the detector
	assert.Empty(t, brk.Orders())
	assert.Equal(t, session.OutcomeNoRange, eng.Session().Outcome)
}

func TestConstraintFetchFailureGatesSession(t *testing.T) {
	jrnl := &memJournal{}

	ticks := append(rangeTicks(), tk(9, 46, 0, 105.15, 105.25))
	eng := newTestEngine(t, downBroker{}, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, session.OutcomeGatedOut, eng.Session().Outcome)
	require.Len(t, jrnl.sessions, 1)
}

func TestCancellationBeforeDispatchPlacesNoOrder(t *testing.T) {
	brk := paper.New(looseConstraints())
	ctx, cancel := context.WithCancel(context.Background())

	// the feed cancels after the range ticks and a quiet watch tick, then
	// offers a qualifying breach; it must never turn into an order
	ticks := append(rangeTicks(),
		tk(9, 46, 0, 104.00, 104.10),
		tk(9, 47, 0, 105.15, 105.25),
	)
	feed := &sliceFeed{ticks: ticks, cancel: cancel, cancelAfter: 4}
	cfg := testConfig(t)
	eng := New(Options{
		Config:  cfg,
		Clock:   testClock(t, cfg),
		Broker:  brk,
		Feed:    feed,
		Journal: &memJournal{},
	})
	require.NoError(t, eng.Run(ctx))

	assert.Empty(t, brk.Orders())
	require.NotNil(t, eng.Session())
	assert.Equal(t, session.OutcomeNoBreakout, eng.Session().Outcome)
}

func TestNextTickEntryPolicy(t *testing.T) {
	brk := paper.New(looseConstraints())

	ticks := append(rangeTicks(),
		tk(9, 46, 0, 105.15, 105.25), // confirmation tick
		tk(9, 46, 1, 105.40, 105.50), // entry comes from this one
	)
	cfg := testConfig(t)
	cfg.Risk.EntryPricePolicy = config.EntryNextTick
	eng := New(Options{
		Config:  cfg,
		Clock:   testClock(t, cfg),
		Broker:  brk,
		Feed:    &sliceFeed{ticks: ticks},
		Journal: &memJournal{},
	})
	require.NoError(t, eng.Run(context.Background()))

	orders := brk.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, 105.50, orders[0].Entry)
	assert.Equal(t, session.OutcomeOrderPlaced, eng.Session().Outcome)
}

func TestFeedLossMidWatchGatesSession(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}
	health := monitoring.NewHealthChecker()

	// the stream dies while the session is still watching; connectivity did
	// not recover, so the session locks out instead of scoring no-breakout
	ticks := append(rangeTicks(), tk(9, 46, 0, 104.00, 104.10))
	cfg := testConfig(t)
	eng := New(Options{
		Config:  cfg,
		Clock:   testClock(t, cfg),
		Broker:  brk,
		Feed:    &sliceFeed{ticks: ticks},
		Journal: jrnl,
		Health:  health,
	})
	require.NoError(t, eng.Run(context.Background()))

	assert.Empty(t, brk.Orders())
	assert.Equal(t, session.OutcomeGatedOut, eng.Session().Outcome)
	assert.Equal(t, "feed connectivity lost", eng.Session().Reason)
	require.Len(t, jrnl.sessions, 1)
	assert.Equal(t, session.OutcomeGatedOut, jrnl.sessions[0].Outcome)

	// the connectivity error surfaces on the health endpoint
	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExpiredOrderCancelledAtDayEnd(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(),
		tk(9, 46, 0, 105.15, 105.25),   // places the order
		tk(23, 59, 30, 104.00, 104.10), // past the order's expiry
	)
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	orders := brk.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, session.OutcomeOrderPlaced, eng.Session().Outcome)

	cancelled := brk.Cancelled()
	require.Len(t, cancelled, 1)
	assert.Equal(t, orders[0].ClientTag, cancelled[0])

	working, err := brk.HasWorkingOrder(context.Background(), "BTCUSDT", "ORB20260105")
	require.NoError(t, err)
	assert.False(t, working)
}

func TestRestartAfterJournaledSessionGatesDay(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{sessions: []journal.SessionRecord{{
		Symbol:  "BTCUSDT",
		Date:    "20260105",
		Outcome: session.OutcomeOrderPlaced,
	}}}

	// a restart mid-session finds the day already resolved in the journal
	ticks := append(rangeTicks(), tk(9, 46, 0, 105.15, 105.25))
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Empty(t, brk.Orders())
	assert.Equal(t, session.OutcomeGatedOut, eng.Session().Outcome)
}

func TestRestartWithWorkingOrderGatesDay(t *testing.T) {
	brk := paper.New(looseConstraints())
	seed := broker.NormalizedOrder{
		CandidateOrder: broker.CandidateOrder{Symbol: "BTCUSDT", Direction: types.SideBuy,
			Entry: 105.25, StopLoss: 100, TakeProfit: 115.75, Volume: 100},
		ClientTag: "ORB20260105-01JXSEEDSEEDSEEDSEEDSEEDSE",
	}
	_, err := brk.PlaceStopOrder(context.Background(), seed)
	require.NoError(t, err)

	// no journal survived the restart, but the day's tagged order is still
	// working at the broker; the day is spoken for
	ticks := append(rangeTicks(), tk(9, 46, 0, 105.15, 105.25))
	eng := newTestEngine(t, brk, &memJournal{}, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	assert.Len(t, brk.Orders(), 1) // only the pre-seeded order
	assert.Equal(t, session.OutcomeGatedOut, eng.Session().Outcome)
}

func TestSessionRollsOverAtNewDay(t *testing.T) {
	brk := paper.New(looseConstraints())
	jrnl := &memJournal{}

	ticks := append(rangeTicks(),
		tk(9, 50, 0, 104.00, 104.10),
		// Tuesday's first tick finalizes Monday as no-breakout
		types.Tick{Symbol: "BTCUSDT", Bid: 104, Ask: 104.1,
			Timestamp: time.Date(2026, 1, 6, 9, 31, 0, 0, time.UTC)},
	)
	eng := newTestEngine(t, brk, jrnl, ticks, false)
	require.NoError(t, eng.Run(context.Background()))

	require.Len(t, jrnl.sessions, 2)
	assert.Equal(t, "20260105", jrnl.sessions[0].Date)
	assert.Equal(t, session.OutcomeNoBreakout, jrnl.sessions[0].Outcome)
	assert.Equal(t, "20260106", eng.Session().Date)
}
