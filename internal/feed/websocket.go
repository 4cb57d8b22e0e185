package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// WebSocketFeed streams live bid/ask ticks from Bybit's public v5 ticker
// stream. It implements PriceFeed; a broken connection closes the tick
// channel, and the engine decides how the session ends.
type WebSocketFeed struct {
	URL    string // e.g. wss://stream.bybit.com/v5/public/linear
	Symbol string
}

func NewWebSocketFeed(url, symbol string) *WebSocketFeed {
	return &WebSocketFeed{URL: url, Symbol: symbol}
}

type wsTickerMessage struct {
	Topic string `json:"topic"`
	TS    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Ask1Price string `json:"ask1Price"`
	} `json:"data"`
}

// Ticks dials the stream, subscribes to the symbol's ticker topic and
// forwards parsed ticks until the connection drops or ctx is cancelled.
func (f *WebSocketFeed) Ticks(ctx context.Context) (<-chan types.Tick, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial ticker stream: %w", err)
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + f.Symbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.Symbol, err)
	}

	out := make(chan types.Tick)
	go f.pingLoop(ctx, conn)
	go func() {
		defer close(out)
		defer conn.Close()

		// Bybit ticker deltas omit unchanged fields, so the last quote
		// is carried forward.
		var lastBid, lastAsk float64
		for {
			if ctx.Err() != nil {
				return
			}
			_, payload, err := conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("symbol", f.Symbol).Msg("Ticker stream closed")
				return
			}

			var msg wsTickerMessage
			if err := json.Unmarshal(payload, &msg); err != nil || msg.Topic == "" {
				continue
			}
			if bid, err := strconv.ParseFloat(msg.Data.Bid1Price, 64); err == nil {
				lastBid = bid
			}
			if ask, err := strconv.ParseFloat(msg.Data.Ask1Price, 64); err == nil {
				lastAsk = ask
			}
			if lastBid == 0 || lastAsk == 0 {
				continue
			}

			tick := types.Tick{
				Symbol:    f.Symbol,
				Bid:       lastBid,
				Ask:       lastAsk,
				Timestamp: time.UnixMilli(msg.TS).UTC(),
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// pingLoop keeps the connection alive; Bybit drops idle streams.
func (f *WebSocketFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}
