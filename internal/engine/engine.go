package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/internal/feed"
	"github.com/ducminhle1904/orb-breakout-bot/internal/gate"
	"github.com/ducminhle1904/orb-breakout-bot/internal/journal"
	"github.com/ducminhle1904/orb-breakout-bot/internal/monitoring"
	"github.com/ducminhle1904/orb-breakout-bot/internal/orb"
	"github.com/ducminhle1904/orb-breakout-bot/internal/risk"
	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// Engine drives one instrument's trading sessions. It consumes a single
// time-ordered event stream and owns all per-session state, so no locking
// is needed inside; running several instruments means running several
// engines.
type Engine struct {
	cfg    *config.Config
	clock  *session.Clock
	broker broker.Broker
	feed   feed.PriceFeed
	jrnl   journal.Journal
	health *monitoring.HealthChecker
	logger zerolog.Logger

	cooldown bool // operator-supplied lockout for the next session

	// per-session state, reset at each exchange-day rollover
	sess          *session.TradingSession
	gate          *gate.Gate
	tracker       *orb.RangeTracker
	detector      *orb.Detector
	atr           *orb.ATR
	pendingSignal *orb.Signal // confirmed, waiting for the next tick's entry price
	constraints   *broker.Constraints
	lastOrder     *broker.NormalizedOrder
	orderExpired  bool // the day-end cancel was already attempted

	lastTick  time.Time
	lastEvent string // previous audit event, for transition chaining
}

// Options carries the collaborators an engine needs.
type Options struct {
	Config   *config.Config
	Clock    *session.Clock
	Broker   broker.Broker
	Feed     feed.PriceFeed
	Journal  journal.Journal
	Health   *monitoring.HealthChecker
	Cooldown bool
}

// New creates an engine. The journal and health checker may be nil.
func New(opts Options) *Engine {
	jrnl := opts.Journal
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	return &Engine{
		cfg:      opts.Config,
		clock:    opts.Clock,
		broker:   opts.Broker,
		feed:     opts.Feed,
		jrnl:     jrnl,
		health:   opts.Health,
		cooldown: opts.Cooldown,
		logger:   log.With().Str("component", "engine").Str("symbol", opts.Config.Instrument.Symbol).Logger(),
	}
}

// Run processes the feed until it ends or ctx is cancelled. Cancellation is
// checked before dispatching each event, so no order is ever placed after a
// shutdown request has been observed, even if a breakout confirms in the
// same instant.
func (e *Engine) Run(ctx context.Context) error {
	ticks, err := e.feed.Ticks(ctx)
	if err != nil {
		return apperrors.NewConnectivityFailure("engine", "open_feed", err)
	}
	if e.health != nil {
		e.health.SetConnected(true)
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case tick, ok := <-ticks:
			if !ok {
				if e.health != nil {
					e.health.SetConnected(false)
				}
				if ctx.Err() != nil {
					e.shutdown()
				} else {
					e.feedLost()
				}
				return nil
			}
			if ctx.Err() != nil {
				e.shutdown()
				return nil
			}
			e.processTick(ctx, tick)
		}
	}
}

// processTick is the single dispatch point for price events.
func (e *Engine) processTick(ctx context.Context, tick types.Tick) {
	if !e.acceptTick(tick) {
		return
	}
	e.lastTick = tick.Timestamp
	if e.health != nil {
		e.health.ObserveTick(tick.Mid(), tick.Timestamp)
	}
	monitoring.UpdatePrice(e.symbol(), tick.Mid())

	if !e.clock.TradingDay(tick.Timestamp) {
		return
	}

	w := e.clock.Window(tick.Timestamp)
	if e.sess == nil || e.sess.Date != w.Date {
		e.expireWorkingOrder(ctx, tick.Timestamp)
		e.rollSession(w, tick.Timestamp)
	}

	switch e.clock.PhaseAt(tick.Timestamp) {
	case session.PhasePreRange:
		// session exists, nothing to do until the range window opens
	case session.PhaseInRange:
		e.onRangeTick(ctx, tick)
	case session.PhaseWatching:
		e.onWatchTick(ctx, tick)
	case session.PhaseClosed:
		e.closeSession()
		e.expireWorkingOrder(ctx, tick.Timestamp)
	}
}

// acceptTick drops malformed ticks and events not newer than the last
// processed one. The offending tick is dropped; the session continues.
func (e *Engine) acceptTick(tick types.Tick) bool {
	if tick.Bid <= 0 || tick.Ask <= 0 || tick.Ask < tick.Bid {
		e.dropTick(tick, "malformed quote")
		return false
	}
	if !tick.Timestamp.After(e.lastTick) {
		e.dropTick(tick, "stale or duplicate timestamp")
		return false
	}
	return true
}

func (e *Engine) dropTick(tick types.Tick, reason string) {
	monitoring.RecordDroppedTick(e.symbol())
	monitoring.RecordError(string(apperrors.CategoryDataQuality))
	e.logger.Debug().Time("ts", tick.Timestamp).Str("reason", reason).Msg("Tick dropped")
}

// rollSession finalizes any open session and starts the new exchange day.
func (e *Engine) rollSession(w session.Window, now time.Time) {
	if e.sess != nil && e.sess.Outcome == session.OutcomeNone {
		e.closeSession()
	}

	e.sess = &session.TradingSession{
		Symbol:  e.symbol(),
		Date:    w.Date,
		Window:  w,
		Started: now,
	}
	e.gate = gate.New(e.cooldown)
	e.tracker = orb.NewRangeTracker(e.cfg.Instrument.Point,
		e.cfg.Breakout.MinRangePoints, e.cfg.Breakout.MaxRangePoints)
	e.atr = orb.NewATR(e.cfg.Breakout.ATRPeriod)
	e.detector = nil
	e.pendingSignal = nil
	e.constraints = nil
	e.lastOrder = nil
	e.orderExpired = false
	e.lastEvent = ""

	e.logger.Info().Str("date", w.Date).
		Time("range_start", e.clock.HomeTime(w.RangeStart)).
		Time("range_end", e.clock.HomeTime(w.RangeEnd)).
		Time("watch_end", e.clock.HomeTime(w.WatchEnd)).
		Msg("New trading session")
}

func (e *Engine) onRangeTick(ctx context.Context, tick types.Tick) {
	if e.gate.State() == gate.StateIdle {
		e.begin(ctx)
	}
	if e.gate.State() != gate.StateRangeBuilding {
		return
	}
	e.tracker.Observe(tick.Mid())
	e.atr.ObserveTick(tick)
}

func (e *Engine) onWatchTick(ctx context.Context, tick types.Tick) {
	switch e.gate.State() {
	case gate.StateIdle:
		// the stream started mid-day; there is no range to watch
		e.begin(ctx)
		e.freezeRange()
	case gate.StateRangeBuilding:
		e.freezeRange()
	}
	if e.gate.State() != gate.StateWatching {
		return
	}

	if e.pendingSignal != nil {
		sig := e.pendingSignal
		e.pendingSignal = nil
		entry := tick.Ask
		if sig.Direction == types.SideSell {
			entry = tick.Bid
		}
		e.attemptPlacement(ctx, sig, entry)
		return
	}

	sig := e.detector.Observe(tick)
	if sig == nil {
		return
	}
	monitoring.RecordBreakout(e.symbol(), sig.Direction.String())
	e.transition("breakout_confirmed", fmt.Sprintf("%s at %v strength %d",
		sig.Direction, sig.Price, sig.Strength))

	if e.cfg.Risk.EntryPricePolicy == config.EntryNextTick {
		e.pendingSignal = sig
		return
	}
	e.attemptPlacement(ctx, sig, sig.Price)
}

// begin starts the session's state machine; under cooldown or when the day
// is already spoken for, the gate locks out immediately and the session
// finalizes as gated-out.
func (e *Engine) begin(ctx context.Context) {
	if reason, traded := e.alreadyTraded(ctx); traded {
		e.gate.ForceGated(reason)
		e.transition("gated", reason)
		e.finalizeSession()
		return
	}
	if err := e.gate.Begin(); err != nil {
		return
	}
	if e.gate.State() == gate.StateGated {
		e.transition("gated", "cooldown active")
		e.finalizeSession()
		return
	}
	e.transition("range_building", "")
}

// alreadyTraded guards against re-running a session that was already
// resolved, typically after a restart. A journaled outcome for the day or a
// working order carrying the day's tag both refuse a fresh attempt; so does
// a failed order check, since trading blind past it could double up.
func (e *Engine) alreadyTraded(ctx context.Context) (string, bool) {
	if _, found, err := e.jrnl.Session(e.sess.Symbol, e.sess.Date); err == nil && found {
		return "session already journaled for " + e.sess.Date, true
	}
	working, err := e.broker.HasWorkingOrder(ctx, e.symbol(), e.sess.Tag())
	if err != nil {
		e.recordError(err)
		return "open order check failed: " + err.Error(), true
	}
	if working {
		return "working order tagged " + e.sess.Tag() + " at broker", true
	}
	return "", false
}

// freezeRange closes the opening range and either arms the breakout
// detector or finalizes the session as no-range.
func (e *Engine) freezeRange() {
	if e.gate.State() != gate.StateRangeBuilding {
		return
	}
	rng := e.tracker.Freeze()
	if !e.tracker.Valid() {
		e.transition("no_range", fmt.Sprintf("samples=%d high=%v low=%v",
			rng.Samples, rng.High, rng.Low))
		e.gate.Close(session.OutcomeNoRange, "invalid opening range")
		e.finalizeSession()
		return
	}

	margin := orb.EffectiveMargin(e.cfg.Breakout, e.atr)
	e.detector = orb.NewDetector(rng, margin, e.cfg.Breakout.ConfirmationCount)
	if err := e.gate.StartWatching(); err != nil {
		return
	}
	monitoring.UpdateRangeWidth(e.symbol(), rng.Width())
	e.transition("watching", fmt.Sprintf("high=%v low=%v margin=%v", rng.High, rng.Low, margin))
}

// attemptPlacement runs the session's single order attempt: size,
// normalize, submit. Local failures resolve the attempt as order-rejected
// without a broker call; a broker answer is final either way.
func (e *Engine) attemptPlacement(ctx context.Context, sig *orb.Signal, entry float64) {
	if err := e.gate.TryPlace(); err != nil {
		return
	}
	e.transition("placing", fmt.Sprintf("entry=%v policy=%s", entry, e.cfg.Risk.EntryPricePolicy))

	constraints, err := e.instrumentConstraints(ctx)
	if err != nil {
		e.recordError(err)
		e.gate.ForceGated("connectivity not recovered")
		e.transition("gated", err.Error())
		e.finalizeSession()
		return
	}

	sizer := risk.NewSizer(e.cfg.Risk)
	candidate, err := sizer.Size(e.symbol(), sig, e.tracker.Range(), entry)
	if err != nil {
		e.resolveLocalFailure(err)
		return
	}

	adapter := broker.NewConstraintAdapter(e.cfg.Risk.RMultiple, e.cfg.Risk.RTolerance, e.cfg.Risk.WidenStops)
	normalized, err := adapter.Normalize(candidate, constraints)
	if err != nil {
		e.resolveLocalFailure(err)
		return
	}
	normalized.ClientTag = e.sess.Tag() + "-" + ulid.Make().String()
	normalized.Expiry = e.sess.Window.DayEnd
	e.lastOrder = &normalized

	placement, err := e.broker.PlaceStopOrder(ctx, normalized)
	if err != nil {
		// Placement is never retried; an unanswered submission needs a
		// human to reconcile broker state before trading resumes.
		e.recordError(err)
		e.gate.ForceGated("placement connectivity failure")
		e.transition("gated", err.Error())
		e.finalizeSession()
		return
	}

	if placement.Accepted {
		monitoring.RecordOrder(e.symbol(), "accepted")
		e.sess.TicketID = placement.TicketID
		e.gate.ResolvePlacement(session.OutcomeOrderPlaced, placement.TicketID)
		e.transition("order_placed", placement.TicketID)
	} else {
		monitoring.RecordOrder(e.symbol(), "rejected")
		e.recordError(apperrors.NewBrokerRejection("engine", placement.Reason))
		e.gate.ResolvePlacement(session.OutcomeOrderRejected, placement.Reason)
		e.transition("order_rejected", placement.Reason)
	}
	e.finalizeSession()
}

// resolveLocalFailure finalizes a sizing or normalization failure as
// order-rejected. The reason carries the error category so the journal can
// distinguish InsufficientRiskBudget, RiskRatioDistorted and
// ConstraintViolation.
func (e *Engine) resolveLocalFailure(err error) {
	category := string(apperrors.CategoryOf(err))
	e.recordError(err)
	monitoring.RecordOrder(e.symbol(), "rejected")
	e.gate.ResolvePlacement(session.OutcomeOrderRejected, category)
	e.transition("order_rejected", err.Error())
	e.finalizeSession()
}

// instrumentConstraints fetches and caches the broker constraints for the
// session. The broker client retries reads with backoff internally.
func (e *Engine) instrumentConstraints(ctx context.Context) (broker.Constraints, error) {
	if e.constraints != nil {
		return *e.constraints, nil
	}
	c, err := e.broker.InstrumentConstraints(ctx, e.symbol())
	if err != nil {
		return broker.Constraints{}, err
	}
	e.constraints = &c
	return c, nil
}

// closeSession finalizes an open session once the clock reports Closed.
func (e *Engine) closeSession() {
	if e.sess == nil || e.sess.Outcome != session.OutcomeNone {
		return
	}
	switch e.gate.State() {
	case gate.StateWatching:
		e.gate.Close(session.OutcomeNoBreakout, "watch window elapsed")
		e.transition("no_breakout", "watch window elapsed")
	case gate.StateRangeBuilding:
		// the stream skipped the whole watch window; judge the range anyway
		e.tracker.Freeze()
		if e.tracker.Valid() {
			e.gate.Close(session.OutcomeNoBreakout, "no ticks in watch window")
		} else {
			e.gate.Close(session.OutcomeNoRange, "invalid opening range")
		}
		e.transition("closed", "session ended during range build")
	case gate.StateIdle:
		e.gate.Close(session.OutcomeNoRange, "no observations")
		e.transition("closed", "no observations")
	default:
		e.gate.Close(session.OutcomeNoBreakout, "session close")
	}
	e.finalizeSession()
}

// shutdown finalizes the current session on cancellation. A session caught
// mid-watch ends as no-breakout; no order is placed past this point.
func (e *Engine) shutdown() {
	if e.sess == nil || e.sess.Outcome != session.OutcomeNone {
		return
	}
	switch e.gate.State() {
	case gate.StateWatching, gate.StatePlacing:
		e.gate.Close(session.OutcomeNoBreakout, "shutdown requested")
	case gate.StateRangeBuilding, gate.StateIdle:
		e.gate.Close(session.OutcomeNoRange, "shutdown requested")
	}
	e.transition("shutdown", "")
	e.finalizeSession()
}

// feedLost finalizes the current session when the price stream dies without
// a shutdown request. Connectivity did not recover, so a session caught
// mid-watch is locked out rather than scored as a quiet no-breakout.
func (e *Engine) feedLost() {
	e.recordError(apperrors.New(apperrors.CategoryConnectivity, "engine", "feed", "price stream closed"))
	if e.sess == nil || e.sess.Outcome != session.OutcomeNone {
		return
	}
	switch e.gate.State() {
	case gate.StateWatching, gate.StatePlacing:
		e.gate.ForceGated("feed connectivity lost")
	case gate.StateRangeBuilding, gate.StateIdle:
		e.gate.Close(session.OutcomeNoRange, "feed connectivity lost")
	}
	e.transition("feed_lost", "")
	e.finalizeSession()
}

// expireWorkingOrder cancels a placed order whose expiry has passed without
// a trigger. The cancel is attempted once; if the venue refuses it, the
// order either filled or is already gone.
func (e *Engine) expireWorkingOrder(ctx context.Context, now time.Time) {
	if e.sess == nil || e.lastOrder == nil || e.orderExpired {
		return
	}
	if e.sess.Outcome != session.OutcomeOrderPlaced {
		return
	}
	if e.lastOrder.Expiry.IsZero() || !now.After(e.lastOrder.Expiry) {
		return
	}
	e.orderExpired = true

	if err := e.broker.CancelOrder(ctx, e.symbol(), e.lastOrder.ClientTag); err != nil {
		e.recordError(err)
		e.logger.Warn().Err(err).Str("tag", e.lastOrder.ClientTag).Msg("Day-end cancel failed")
		return
	}
	monitoring.RecordOrder(e.symbol(), "expired")
	e.transition("order_expired", e.lastOrder.ClientTag)
}

// finalizeSession writes the session outcome exactly once.
func (e *Engine) finalizeSession() {
	if e.sess == nil || e.sess.Outcome != session.OutcomeNone {
		return
	}
	outcome := e.gate.Outcome()
	if outcome == session.OutcomeNone {
		return
	}
	e.sess.Outcome = outcome
	e.sess.Reason = e.gate.Reason()

	rec := journal.SessionRecord{
		Symbol:   e.sess.Symbol,
		Date:     e.sess.Date,
		Outcome:  outcome,
		Reason:   e.sess.Reason,
		TicketID: e.sess.TicketID,
		ClosedAt: e.lastTick,
	}
	if e.lastOrder != nil {
		rec.Direction = e.lastOrder.Direction.String()
		rec.Entry = e.lastOrder.Entry
		rec.StopLoss = e.lastOrder.StopLoss
		rec.TakeProfit = e.lastOrder.TakeProfit
		rec.Volume = e.lastOrder.Volume
	}
	if err := e.jrnl.RecordSession(rec); err != nil {
		e.logger.Error().Err(err).Msg("Journal write failed")
	}

	monitoring.RecordSession(e.symbol(), string(outcome))
	e.logger.Info().Str("date", e.sess.Date).Str("outcome", string(outcome)).
		Str("reason", e.sess.Reason).Msg("Session finalized")
}

// transition emits one structured audit event per state change.
func (e *Engine) transition(to, detail string) {
	e.logger.Info().Str("state", e.gate.State().String()).Str("event", to).
		Str("detail", detail).Msg("Transition")
	if e.sess == nil {
		return
	}
	err := e.jrnl.RecordTransition(journal.TransitionRecord{
		Symbol: e.sess.Symbol,
		Date:   e.sess.Date,
		From:   e.lastEvent,
		To:     to,
		Detail: detail,
		At:     e.lastTick,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("Journal transition write failed")
	}
	e.lastEvent = to
}

// recordError surfaces a terminal error on both the metrics endpoint and
// the health endpoint.
func (e *Engine) recordError(err error) {
	monitoring.RecordError(string(apperrors.CategoryOf(err)))
	if e.health != nil {
		e.health.RecordError(err.Error())
	}
}

func (e *Engine) symbol() string {
	return e.cfg.Instrument.Symbol
}

// Session returns the current session, for inspection in tests and status
// commands.
func (e *Engine) Session() *session.TradingSession {
	return e.sess
}
