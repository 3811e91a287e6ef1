package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aitrader/internal/logger"
	"aitrader/pkg/types"
)

// WSStream consumes the venue's public websocket (kline + orderbook
// topics) and converts messages into engine events. Reconnects with a
// fixed delay; subscriptions are replayed after reconnect.
type WSStream struct {
	url    string
	log    *logger.Logger
	conn   *websocket.Conn
	events chan Event

	symbols []string
	mu      sync.Mutex

	ctx           context.Context
	cancel        context.CancelFunc
	reconnectChan chan struct{}
}

// NewWSStream creates a stream for the given websocket endpoint.
func NewWSStream(url string, log *logger.Logger) *WSStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSStream{
		url:           url,
		log:           log,
		events:        make(chan Event, 1024),
		ctx:           ctx,
		cancel:        cancel,
		reconnectChan: make(chan struct{}, 1),
	}
}

// Events returns the event channel consumed by the engine.
func (s *WSStream) Events() <-chan Event { return s.events }

// Subscribe connects and subscribes to kline and orderbook topics for
// the symbols.
func (s *WSStream) Subscribe(symbols []string) error {
	s.mu.Lock()
	s.symbols = symbols
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		return err
	}
	go s.handleReconnection()
	return nil
}

// Close tears down the connection and stops the reconnect loop.
func (s *WSStream) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *WSStream) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect market stream: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	symbols := s.symbols
	s.mu.Unlock()

	args := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		args = append(args, "kline.1."+sym, "orderbook.25."+sym)
	}
	sub := map[string]interface{}{"op": "subscribe", "args": args}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	go s.readMessages(conn)
	go s.pingLoop(conn)
	return nil
}

func (s *WSStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			msg := []byte(`{"op":"ping"}`)
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *WSStream) readMessages(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() == nil {
					s.log.Error("market stream read error: %v", err)
					s.triggerReconnect()
				}
				return
			}
			s.handleMessage(message)
		}
	}
}

func (s *WSStream) triggerReconnect() {
	select {
	case s.reconnectChan <- struct{}{}:
	default:
	}
}

func (s *WSStream) handleReconnection() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.reconnectChan:
			s.log.Warning("market stream reconnecting...")
			time.Sleep(5 * time.Second)
			if err := s.connect(); err != nil {
				s.log.Error("market stream reconnect failed: %v", err)
				s.triggerReconnect()
			}
		}
	}
}

// wsEnvelope is the venue's topic push frame.
type wsEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"`
}

type wsKline struct {
	Start    int64  `json:"start"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
	Interval string `json:"interval"`
}

type wsOrderbook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

func (s *WSStream) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil || env.Topic == "" {
		return
	}

	switch {
	case len(env.Topic) > 6 && env.Topic[:6] == "kline.":
		s.handleKline(env)
	case len(env.Topic) > 10 && env.Topic[:10] == "orderbook.":
		s.handleOrderbook(env)
	}
}

func (s *WSStream) handleKline(env wsEnvelope) {
	symbol := topicSymbol(env.Topic)
	var klines []wsKline
	if err := json.Unmarshal(env.Data, &klines); err != nil {
		return
	}
	for _, k := range klines {
		// Only closed bars feed the aggregation pipeline.
		if !k.Confirm {
			continue
		}
		s.emit(BarEvent{
			Symbol: symbol,
			Bar: types.OHLCV{
				Open:      parseF(k.Open),
				High:      parseF(k.High),
				Low:       parseF(k.Low),
				Close:     parseF(k.Close),
				Volume:    parseF(k.Volume),
				Timestamp: time.UnixMilli(k.Start),
			},
		})
	}
}

func (s *WSStream) handleOrderbook(env wsEnvelope) {
	symbol := topicSymbol(env.Topic)
	var book wsOrderbook
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return
	}

	tick := types.Tick{
		Symbol:    symbol,
		Bids:      parseLevels(book.Bids, 5),
		Asks:      parseLevels(book.Asks, 5),
		Timestamp: time.UnixMilli(env.Ts),
	}
	if len(tick.Bids) > 0 && len(tick.Asks) > 0 {
		tick.LastPrice = (tick.Bids[0].Price + tick.Asks[0].Price) / 2
	}
	s.emit(TickEvent{Symbol: symbol, Tick: tick})
}

func (s *WSStream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Engine is behind; dropping the oldest class of data (a
		// single book update) is safer than blocking the reader.
		s.log.Warning("market stream buffer full, dropping event")
	}
}

func topicSymbol(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '.' {
			return topic[i+1:]
		}
	}
	return topic
}

func parseLevels(raw [][]string, max int) []types.DepthLevel {
	levels := make([]types.DepthLevel, 0, max)
	for _, pair := range raw {
		if len(pair) < 2 || len(levels) >= max {
			break
		}
		levels = append(levels, types.DepthLevel{
			Price:  parseF(pair[0]),
			Volume: parseF(pair[1]),
		})
	}
	return levels
}

func parseF(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
