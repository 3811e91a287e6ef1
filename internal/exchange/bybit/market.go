package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"aitrader/pkg/types"
)

// decodeResult checks the API return code and unmarshals the result
// payload into out.
func decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}
	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// GetKlines fetches closed 1-minute bars for a symbol, oldest first.
// The venue returns newest first; the slice is reversed before return.
func (c *Client) GetKlines(ctx context.Context, symbol string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": "1",
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	var klineResult struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if err := decodeResult(result, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}

	bars := make([]types.OHLCV, 0, len(klineResult.List))
	for i := len(klineResult.List) - 1; i >= 0; i-- {
		item := klineResult.List[i]
		if len(item) < 6 {
			continue
		}
		// [startTime, open, high, low, close, volume, turnover]
		bars = append(bars, types.OHLCV{
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
			Timestamp: time.UnixMilli(parseInt64(item[0])),
		})
	}
	return bars, nil
}

// GetInstrument fetches the contract parameters the planner needs.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (types.Instrument, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return types.Instrument{}, fmt.Errorf("failed to get instrument info: %w", err)
	}

	var infoResult struct {
		List []struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := decodeResult(result, &infoResult); err != nil {
		return types.Instrument{}, fmt.Errorf("failed to parse instrument info: %w", err)
	}
	if len(infoResult.List) == 0 {
		return types.Instrument{}, fmt.Errorf("instrument %s not found", symbol)
	}

	info := infoResult.List[0]
	return types.Instrument{
		Symbol:    info.Symbol,
		TickSize:  parseFloat64(info.PriceFilter.TickSize),
		MinVolume: parseFloat64(info.LotSizeFilter.MinOrderQty),
	}, nil
}

// GetOrderBook fetches the top of book, up to limit levels per side.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (types.Tick, error) {
	if limit <= 0 {
		limit = 25
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return types.Tick{}, fmt.Errorf("failed to get order book: %w", err)
	}

	var bookResult struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Ts     int64      `json:"ts"`
	}
	if err := decodeResult(result, &bookResult); err != nil {
		return types.Tick{}, fmt.Errorf("failed to parse order book: %w", err)
	}

	tick := types.Tick{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(bookResult.Ts),
	}
	for i, pair := range bookResult.Bids {
		if i >= 5 || len(pair) < 2 {
			break
		}
		tick.Bids = append(tick.Bids, types.DepthLevel{Price: parseFloat64(pair[0]), Volume: parseFloat64(pair[1])})
	}
	for i, pair := range bookResult.Asks {
		if i >= 5 || len(pair) < 2 {
			break
		}
		tick.Asks = append(tick.Asks, types.DepthLevel{Price: parseFloat64(pair[0]), Volume: parseFloat64(pair[1])})
	}
	if len(tick.Bids) > 0 && len(tick.Asks) > 0 {
		tick.LastPrice = (tick.Bids[0].Price + tick.Asks[0].Price) / 2
	}
	return tick, nil
}
