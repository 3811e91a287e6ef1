package bybit

import (
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the venue's HTTP API for linear futures trading.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
	demo       bool
}

// Config holds the venue client configuration.
type Config struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Category  string `json:"category"` // "linear" or "inverse"
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"` // paper-trading environment
}

// NewClient creates a venue client.
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	if config.Category == "" {
		config.Category = "linear"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		category:   config.Category,
		testnet:    config.Testnet,
		demo:       config.Demo,
	}
}

// Environment describes which endpoint the client talks to.
func (c *Client) Environment() string {
	if c.demo {
		return "demo"
	}
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

func parseFloat64(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func parseInt64(v string) int64 {
	i, _ := strconv.ParseInt(v, 10, 64)
	return i
}
