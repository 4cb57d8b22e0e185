package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog/log"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// PlaceStopOrder submits the normalized order as a conditional limit order
// triggered at the entry price, with the stop-loss and take-profit attached.
// A transport failure surfaces as ConnectivityFailure; a non-zero return
// code is an authoritative broker rejection and is never resubmitted.
func (c *Client) PlaceStopOrder(ctx context.Context, order broker.NormalizedOrder) (broker.Placement, error) {
	side := "Buy"
	triggerDirection := 1 // triggers when the price rises to triggerPrice
	if order.Direction == types.SideSell {
		side = "Sell"
		triggerDirection = 2 // triggers when the price falls to triggerPrice
	}

	params := map[string]interface{}{
		"category":         c.cfg.Category,
		"symbol":           order.Symbol,
		"side":             side,
		"orderType":        "Limit",
		"qty":              formatFloat(order.Volume),
		"price":            formatFloat(order.Entry),
		"triggerPrice":     formatFloat(order.Entry),
		"triggerDirection": triggerDirection,
		"takeProfit":       formatFloat(order.TakeProfit),
		"stopLoss":         formatFloat(order.StopLoss),
		"timeInForce":      "GTC",
	}
	if order.ClientTag != "" {
		params["orderLinkId"] = order.ClientTag
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return broker.Placement{}, apperrors.NewConnectivityFailure("bybit", "place_order", err)
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return broker.Placement{}, apperrors.NewConnectivityFailure("bybit", "place_order", err)
	}

	if result.RetCode != 0 {
		log.Warn().Int("ret_code", result.RetCode).Str("reason", result.RetMsg).
			Str("symbol", order.Symbol).Msg("Broker rejected stop order")
		return broker.Placement{Accepted: false, Reason: result.RetMsg}, nil
	}

	ticket := parseOrderID(result)
	log.Info().Str("ticket", ticket).Str("symbol", order.Symbol).
		Str("side", side).Str("tag", order.ClientTag).Msg("Stop order placed")
	return broker.Placement{Accepted: true, TicketID: ticket}, nil
}

// HasWorkingOrder reports whether any open order on the symbol carries a
// client tag starting with tagPrefix. It goes through the retrying read
// path, so a transport failure here means connectivity is genuinely down.
func (c *Client) HasWorkingOrder(ctx context.Context, symbol, tagPrefix string) (bool, error) {
	params := map[string]interface{}{
		"category": c.cfg.Category,
		"symbol":   symbol,
		"openOnly": 0,
	}

	result, err := c.readCall(ctx, "open_orders", func() (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	})
	if err != nil {
		return false, err
	}

	resp, ok := result.(*bybit_api.ServerResponse)
	if !ok || resp.RetCode != 0 {
		return false, apperrors.NewBrokerRejection("bybit",
			fmt.Sprintf("open orders query failed: %v", result))
	}

	tags, err := parseOrderTags(resp)
	if err != nil {
		return false, apperrors.NewBrokerRejection("bybit", "malformed open orders payload: "+err.Error())
	}
	for _, tag := range tags {
		if strings.HasPrefix(tag, tagPrefix) {
			return true, nil
		}
	}
	return false, nil
}

// CancelOrder withdraws a working order by its client tag. A transport
// failure surfaces as ConnectivityFailure; a non-zero return code means the
// venue refused the cancel, typically because the order already filled or
// was cancelled.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientTag string) error {
	params := map[string]interface{}{
		"category":    c.cfg.Category,
		"symbol":      symbol,
		"orderLinkId": clientTag,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewConnectivityFailure("bybit", "cancel_order", err)
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return apperrors.NewConnectivityFailure("bybit", "cancel_order", err)
	}
	if result.RetCode != 0 {
		return apperrors.NewBrokerRejection("bybit",
			fmt.Sprintf("cancel refused (%d): %s", result.RetCode, result.RetMsg))
	}

	log.Info().Str("symbol", symbol).Str("tag", clientTag).Msg("Working order cancelled")
	return nil
}

func parseOrderTags(resp *bybit_api.ServerResponse) ([]string, error) {
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, err
	}
	var payload struct {
		List []struct {
			OrderLinkID string `json:"orderLinkId"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(payload.List))
	for _, o := range payload.List {
		tags = append(tags, o.OrderLinkID)
	}
	return tags, nil
}

func parseOrderID(resp *bybit_api.ServerResponse) string {
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return ""
	}
	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.OrderID
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
