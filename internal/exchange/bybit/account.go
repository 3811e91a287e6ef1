package bybit

import (
	"context"
	"fmt"

	"aitrader/pkg/types"
)

// GetAccount returns the unified account's equity, available balance
// and margin in use.
func (c *Client) GetAccount(ctx context.Context) (types.AccountSnapshot, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("failed to get account wallet: %w", err)
	}

	var walletResult struct {
		List []struct {
			TotalEquity            string `json:"totalEquity"`
			TotalAvailableBalance  string `json:"totalAvailableBalance"`
			TotalInitialMargin     string `json:"totalInitialMargin"`
			TotalMaintenanceMargin string `json:"totalMaintenanceMargin"`
		} `json:"list"`
	}
	if err := decodeResult(result, &walletResult); err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("failed to parse account wallet: %w", err)
	}
	if len(walletResult.List) == 0 {
		return types.AccountSnapshot{}, fmt.Errorf("no account data returned")
	}

	acc := walletResult.List[0]
	return types.AccountSnapshot{
		Equity:     parseFloat64(acc.TotalEquity),
		Available:  parseFloat64(acc.TotalAvailableBalance),
		MarginUsed: parseFloat64(acc.TotalInitialMargin),
		Source:     "venue",
	}, nil
}
