package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"nft-market-lab/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
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
	// SubscribeTimeout bounds how long Subscribe waits for confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient is a streaming price-feed source backed by a WebSocket endpoint.
// The endpoint pushes price rounds for subscribed feeds; the client caches the
// latest round per feed and serves LatestRound from that cache without blocking.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// latest caches the most recent round per feed ID
	latest   map[string]Round
	latestMu sync.RWMutex

	// subscribed tracks feeds for resubscription after reconnect
	subscribed   map[string]struct{}
	subscribedMu sync.Mutex

	// pending maps request ID to channel waiting for subscription ack
	pending   map[uint64]chan error
	pendingMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket price client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:   endpoint,
		config:     cfg,
		latest:     make(map[string]Round),
		subscribed: make(map[string]struct{}),
		pending:    make(map[uint64]chan error),
		done:       make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe registers interest in a feed and waits for the endpoint's ack.
// Rounds pushed for the feed become visible through LatestRound.
func (c *WSClient) Subscribe(ctx context.Context, feedID string) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	if err := c.sendSubscribe(ctx, feedID); err != nil {
		return err
	}

	c.subscribedMu.Lock()
	c.subscribed[feedID] = struct{}{}
	c.subscribedMu.Unlock()

	return nil
}

// sendSubscribe issues one subscribe request and waits for confirmation.
func (c *WSClient) sendSubscribe(ctx context.Context, feedID string) error {
	reqID := c.requestID.Add(1)

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "priceSubscribe",
		Params:  []interface{}{feedID},
	}

	confirmCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	removePending := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		removePending()
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		removePending()
		return fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case err := <-confirmCh:
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", feedID, err)
		}
		return nil
	case <-time.After(c.config.SubscribeTimeout):
		removePending()
		return fmt.Errorf("subscription timeout for feed %s", feedID)
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		removePending()
		return ctx.Err()
	}
}

// LatestRound returns the cached round for the feed.
// Returns ErrFeedUnavailable until the endpoint has pushed at least one round.
func (c *WSClient) LatestRound(_ context.Context, feedID string) (Round, error) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()

	round, ok := c.latest[feedID]
	if !ok {
		return Round{}, ErrFeedUnavailable
	}
	return Round{Price: new(big.Int).Set(round.Price), UpdatedAt: round.UpdatedAt}, nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and updates the round cache.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				observability.DefaultMetrics.OracleReconnects.Inc()
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	c.resubscribeAll()
}

// resubscribeAll renews every feed subscription after reconnect.
// The round cache survives reconnects; stale rounds are overwritten on the
// first push from the new connection.
func (c *WSClient) resubscribeAll() {
	c.subscribedMu.Lock()
	feeds := make([]string, 0, len(c.subscribed))
	for feed := range c.subscribed {
		feeds = append(feeds, feed)
	}
	c.subscribedMu.Unlock()

	for _, feed := range feeds {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.sendSubscribe(ctx, feed)
		cancel()
		if err != nil {
			// Failed to resubscribe; cache keeps serving the last round
			continue
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	// Try to parse as notification first (the common case)
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "priceNotification" {
		c.handlePriceNotification(&notif)
		return
	}

	// Try to parse as subscription ack
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}
}

// handleSubscribeResponse handles subscription confirmation or rejection.
func (c *WSClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return
	}

	var result error
	if resp.Error != nil {
		result = fmt.Errorf("endpoint error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	select {
	case ch <- result:
	default:
	}
}

// handlePriceNotification updates the cached round for a feed.
func (c *WSClient) handlePriceNotification(notif *wsNotification) {
	if notif.Params == nil || notif.Params.Feed == "" {
		return
	}

	price, ok := new(big.Int).SetString(notif.Params.Price, 10)
	if !ok {
		return
	}

	c.latestMu.Lock()
	c.latest[notif.Params.Feed] = Round{Price: price, UpdatedAt: notif.Params.UpdatedAt}
	c.latestMu.Unlock()

	observability.RecordOracleRound(notif.Params.Feed)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      uint64   `json:"id"`
	Result  bool     `json:"result"`
	Error   *wsError `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Feed      string `json:"feed"`
	Price     string `json:"price"` // integer string at PriceDecimals precision
	UpdatedAt int64  `json:"updated_at"`
}

var _ Source = (*WSClient)(nil)
