package bybit

import (
	"context"
	"fmt"
	"strconv"

	"aitrader/pkg/types"
)

// PlaceOrder submits a limit order for an intent. Opening intents with
// a stop-loss attach it at placement so the venue enforces the stop
// even if the process dies.
func (c *Client) PlaceOrder(ctx context.Context, intent types.OrderIntent) (string, error) {
	side := "Buy"
	if intent.Direction == types.DirectionShort {
		side = "Sell"
	}
	reduceOnly := intent.Offset == types.OffsetClose

	params := map[string]interface{}{
		"category":   c.category,
		"symbol":     intent.Symbol,
		"side":       side,
		"orderType":  "Limit",
		"qty":        formatQty(intent.Volume),
		"price":      formatPrice(intent.Price),
		"reduceOnly": reduceOnly,
	}
	if intent.StopLoss > 0 && !reduceOnly {
		params["stopLoss"] = formatPrice(intent.StopLoss)
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to place order: %w", err)
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := decodeResult(result, &orderResult); err != nil {
		return "", fmt.Errorf("failed to parse order response: %w", err)
	}
	if orderResult.OrderID == "" {
		return "", fmt.Errorf("venue returned empty order id")
	}
	return orderResult.OrderID, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	if _, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrderFill returns the cumulative executed quantity and average
// fill price for an order, checking open orders first and falling back
// to history for finished ones.
func (c *Client) GetOrderFill(ctx context.Context, symbol, orderID string) (float64, float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}

	cum, avg, found, err := parseOrderFill(result, orderID)
	if err != nil {
		return 0, 0, err
	}
	if found {
		return cum, avg, nil
	}

	result, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query order history for %s: %w", orderID, err)
	}
	cum, avg, found, err = parseOrderFill(result, orderID)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, fmt.Errorf("order %s not found", orderID)
	}
	return cum, avg, nil
}

func parseOrderFill(response interface{}, orderID string) (float64, float64, bool, error) {
	var ordersResult struct {
		List []struct {
			OrderID     string `json:"orderId"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}
	if err := decodeResult(response, &ordersResult); err != nil {
		return 0, 0, false, fmt.Errorf("failed to parse order list: %w", err)
	}
	for _, o := range ordersResult.List {
		if o.OrderID == orderID {
			return parseFloat64(o.CumExecQty), parseFloat64(o.AvgPrice), true, nil
		}
	}
	return 0, 0, false, nil
}

// GetNetPosition returns the signed position size in lots.
func (c *Client) GetNetPosition(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get positions: %w", err)
	}

	var posResult struct {
		List []struct {
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
			Size   string `json:"size"`
		} `json:"list"`
	}
	if err := decodeResult(result, &posResult); err != nil {
		return 0, fmt.Errorf("failed to parse positions: %w", err)
	}

	net := 0.0
	for _, p := range posResult.List {
		if p.Symbol != symbol {
			continue
		}
		size := parseFloat64(p.Size)
		if p.Side == "Sell" {
			size = -size
		}
		net += size
	}
	return net, nil
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
