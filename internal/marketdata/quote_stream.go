package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// QuoteStreamConfig configures stream behavior.
type QuoteStreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultQuoteStreamConfig returns default stream configuration.
func DefaultQuoteStreamConfig() QuoteStreamConfig {
	return QuoteStreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

type quote struct {
	bid float64
	ask float64
	at  time.Time
}

// QuoteStream keeps a live bid/ask cache over a websocket quote feed.
// Mid reads never block on the network; they see the latest cached quote.
type QuoteStream struct {
	endpoint string
	config   QuoteStreamConfig
	log      *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	quotes   map[string]quote
	quotesMu sync.RWMutex

	// symbols stores subscriptions for replay after reconnect
	symbols   map[string]struct{}
	symbolsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewQuoteStream connects to the quote feed and starts the read and ping
// loops.
func NewQuoteStream(ctx context.Context, endpoint string, config *QuoteStreamConfig, log *slog.Logger) (*QuoteStream, error) {
	cfg := DefaultQuoteStreamConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = slog.Default()
	}

	s := &QuoteStream{
		endpoint: endpoint,
		config:   cfg,
		log:      log,
		quotes:   make(map[string]quote),
		symbols:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the websocket connection.
func (s *QuoteStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// Subscribe requests quotes for the symbols and remembers them for
// resubscription after a reconnect.
func (s *QuoteStream) Subscribe(symbols ...string) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}

	s.symbolsMu.Lock()
	for _, sym := range symbols {
		s.symbols[sym] = struct{}{}
	}
	s.symbolsMu.Unlock()

	return s.writeSubscribe(symbols)
}

func (s *QuoteStream) writeSubscribe(symbols []string) error {
	req := wsQuoteRequest{Type: "subscribe", Symbols: symbols}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Mid returns the cached mid price for a symbol. The second return is
// false when no quote has arrived yet or the quote is one-sided.
func (s *QuoteStream) Mid(symbol string) (float64, bool) {
	s.quotesMu.RLock()
	q, ok := s.quotes[symbol]
	s.quotesMu.RUnlock()

	if !ok || q.bid <= 0 || q.ask <= 0 {
		return 0, false
	}
	return (q.bid + q.ask) / 2, true
}

// Close closes the stream.
func (s *QuoteStream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads quote messages and updates the cache.
func (s *QuoteStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (s *QuoteStream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.log.Warn("quote stream reconnect failed", "error", err)
		return
	}

	s.symbolsMu.Lock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.symbolsMu.Unlock()

	if len(symbols) > 0 {
		if err := s.writeSubscribe(symbols); err != nil {
			s.log.Warn("quote stream resubscribe failed", "error", err)
		}
	}
}

// handleMessage parses a quote message and updates the cache.
func (s *QuoteStream) handleMessage(message []byte) {
	var msg wsQuoteMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.log.Debug("unparseable quote message", "error", err)
		return
	}
	if msg.Type != "quote" || msg.Symbol == "" {
		return
	}

	s.quotesMu.Lock()
	s.quotes[msg.Symbol] = quote{bid: msg.Bid, ask: msg.Ask, at: time.Now().UTC()}
	s.quotesMu.Unlock()
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *QuoteStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Websocket message types

type wsQuoteRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type wsQuoteMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}
