package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
)

// InstrumentConstraints fetches the instrument's price and lot filters and
// maps them onto the broker constraint model. Bybit does not publish a
// minimum stop distance, so the configured backstop fills that field.
func (c *Client) InstrumentConstraints(ctx context.Context, symbol string) (broker.Constraints, error) {
	params := map[string]interface{}{
		"category": c.cfg.Category,
		"symbol":   symbol,
	}

	result, err := c.readCall(ctx, "instrument_info", func() (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	})
	if err != nil {
		return broker.Constraints{}, err
	}

	constraints, err := parseConstraints(result, symbol)
	if err != nil {
		return broker.Constraints{}, apperrors.Wrap(err, apperrors.CategoryConnectivity, "bybit", "parse_instrument_info")
	}
	constraints.MinStopDistance = c.cfg.MinStopDistance
	return constraints, nil
}

func parseConstraints(response interface{}, symbol string) (broker.Constraints, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return broker.Constraints{}, fmt.Errorf("unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return broker.Constraints{}, fmt.Errorf("API error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return broker.Constraints{}, fmt.Errorf("marshal result: %w", err)
	}

	var payload struct {
		List []struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				MaxOrderQty string `json:"maxOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return broker.Constraints{}, fmt.Errorf("unmarshal instrument list: %w", err)
	}

	for _, item := range payload.List {
		if item.Symbol != symbol {
			continue
		}
		return broker.Constraints{
			TickSize:  parseFloat(item.PriceFilter.TickSize),
			LotStep:   parseFloat(item.LotSizeFilter.QtyStep),
			MinVolume: parseFloat(item.LotSizeFilter.MinOrderQty),
			MaxVolume: parseFloat(item.LotSizeFilter.MaxOrderQty),
		}, nil
	}
	return broker.Constraints{}, fmt.Errorf("instrument %s not found", symbol)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
