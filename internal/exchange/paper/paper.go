package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
)

// Broker is an in-process broker for replay runs and tests. It hands out
// static constraints and accepts every compliant order without touching a
// venue.
type Broker struct {
	Constraints broker.Constraints

	mu        sync.Mutex
	nextID    int
	history   []broker.NormalizedOrder
	working   map[string]broker.NormalizedOrder
	cancelled []string
}

// New creates a paper broker with the given constraints.
func New(constraints broker.Constraints) *Broker {
	return &Broker{
		Constraints: constraints,
		working:     make(map[string]broker.NormalizedOrder),
	}
}

func (b *Broker) InstrumentConstraints(_ context.Context, _ string) (broker.Constraints, error) {
	return b.Constraints, nil
}

func (b *Broker) PlaceStopOrder(_ context.Context, order broker.NormalizedOrder) (broker.Placement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.history = append(b.history, order)
	if b.working == nil {
		b.working = make(map[string]broker.NormalizedOrder)
	}
	b.working[order.ClientTag] = order
	ticket := fmt.Sprintf("PAPER-%06d", b.nextID)

	log.Info().Str("ticket", ticket).Str("symbol", order.Symbol).
		Str("side", order.Direction.String()).
		Float64("entry", order.Entry).Float64("sl", order.StopLoss).
		Float64("tp", order.TakeProfit).Float64("volume", order.Volume).
		Msg("Paper stop order accepted")
	return broker.Placement{Accepted: true, TicketID: ticket}, nil
}

func (b *Broker) HasWorkingOrder(_ context.Context, _ string, tagPrefix string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tag := range b.working {
		if strings.HasPrefix(tag, tagPrefix) {
			return true, nil
		}
	}
	return false, nil
}

func (b *Broker) CancelOrder(_ context.Context, _ string, clientTag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.working[clientTag]; !ok {
		return apperrors.NewBrokerRejection("paper", "no working order tagged "+clientTag)
	}
	delete(b.working, clientTag)
	b.cancelled = append(b.cancelled, clientTag)
	log.Info().Str("tag", clientTag).Msg("Paper order cancelled")
	return nil
}

// Orders returns the orders accepted so far.
func (b *Broker) Orders() []broker.NormalizedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.NormalizedOrder, len(b.history))
	copy(out, b.history)
	return out
}

// Cancelled returns the client tags of cancelled orders, in cancel order.
func (b *Broker) Cancelled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.cancelled))
	copy(out, b.cancelled)
	return out
}
