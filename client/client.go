// Package client provides a Go client for connecting to a remote router
// instance via the Router Wire Protocol (RWP) over WebSocket.
//
// Usage:
//
//	c, err := client.Dial("wss://api.example.com/rwp",
//	    client.WithToken("rk_..."),
//	    client.WithWorkerID("wkr_..."),
//	)
//	defer c.Close()
//
//	// React to pushed offers.
//	for n := range c.Offers() {
//	    if n.Event == rwp.EventOfferIssued {
//	        c.AcceptOffer(ctx, n.Offer.WorkerID, n.Offer.OfferID)
//	    }
//	}
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/router/rwp"
)

// OfferNotification is a pushed offer lifecycle event.
type OfferNotification struct {
	// Event is one of rwp.EventOfferIssued, EventOfferExpired,
	// EventOfferRevoked.
	Event string

	// Offer describes the offer the event concerns.
	Offer rwp.OfferEvent
}

// Client is an RWP client that communicates with a remote router server.
type Client struct {
	url      string
	token    string
	format   string
	workerID string
	logger   *slog.Logger

	// Reconnection.
	reconnect  bool
	maxRetries int
	baseDelay  time.Duration

	// Connection state.
	conn      net.Conn
	mu        sync.Mutex
	closed    atomic.Bool
	sessionID string

	// Request-response correlation.
	pending sync.Map // frameID → chan *rwp.Frame

	// Pushed offer events.
	offers chan *OfferNotification
}

// Dial connects to an RWP server and authenticates.
func Dial(url string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), url, opts...)
}

// DialContext connects to an RWP server with a context.
func DialContext(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:        url,
		format:     rwp.CodecNameJSON,
		logger:     slog.Default(),
		maxRetries: 5,
		baseDelay:  time.Second,
		offers:     make(chan *OfferNotification, 64),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("router/client: dial: %w", err)
	}

	// Start the read loop.
	go c.readLoop()

	return c, nil
}

// connect establishes the WebSocket connection and sends the auth frame.
// It reads the auth response directly since the readLoop hasn't started yet.
func (c *Client) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	// Send auth frame.
	authFrame := &rwp.Frame{
		ID:     rwp.GenerateFrameID(),
		Type:   rwp.FrameRequest,
		Method: rwp.MethodAuth,
		Token:  c.token,
	}
	authData, marshalErr := json.Marshal(rwp.AuthRequest{
		Token:    c.token,
		Format:   c.format,
		WorkerID: c.workerID,
	})
	if marshalErr != nil {
		_ = conn.Close()
		return fmt.Errorf("marshal auth request: %w", marshalErr)
	}
	authFrame.Data = authData
	authFrame.Timestamp = time.Now().UTC()

	if writeErr := c.writeFrame(authFrame); writeErr != nil {
		_ = conn.Close()
		return fmt.Errorf("write auth frame: %w", writeErr)
	}

	// Read the auth response directly from the WebSocket.
	// We cannot use readLoop here because it hasn't been started yet
	// (DialContext starts it after connect returns).
	type readResult struct {
		resp *rwp.Frame
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, readErr := wsutil.ReadServerText(conn)
		if readErr != nil {
			resultCh <- readResult{err: fmt.Errorf("read auth response: %w", readErr)}
			return
		}
		var frame rwp.Frame
		if unmarshalErr := json.Unmarshal(data, &frame); unmarshalErr != nil {
			resultCh <- readResult{err: fmt.Errorf("unmarshal auth response: %w", unmarshalErr)}
			return
		}
		resultCh <- readResult{resp: &frame}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			_ = conn.Close()
			return result.err
		}
		resp := result.resp
		if resp.Type == rwp.FrameErr {
			_ = conn.Close()
			msg := "unknown error"
			if resp.Error != nil {
				msg = resp.Error.Message
			}
			return fmt.Errorf("auth failed: %s", msg)
		}
		// Extract session ID.
		var authResp rwp.AuthResponse
		if len(resp.Data) > 0 {
			if unmarshalErr := json.Unmarshal(resp.Data, &authResp); unmarshalErr != nil {
				c.logger.Warn("failed to unmarshal auth response", slog.String("error", unmarshalErr.Error()))
			}
		}
		c.sessionID = authResp.SessionID
		c.logger.Info("RWP client connected",
			slog.String("session_id", c.sessionID),
			slog.String("format", authResp.Format),
		)
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-time.After(10 * time.Second):
		_ = conn.Close()
		return fmt.Errorf("auth timeout")
	}
}

// readLoop reads frames from the WebSocket and dispatches them.
func (c *Client) readLoop() {
	for {
		if c.closed.Load() {
			return
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("RWP client read error", slog.String("error", err.Error()))
			if c.reconnect {
				c.tryReconnect()
			}
			return
		}

		var frame rwp.Frame
		if unmarshalErr := json.Unmarshal(data, &frame); unmarshalErr != nil {
			c.logger.Warn("RWP client: invalid frame", slog.String("error", unmarshalErr.Error()))
			continue
		}

		// Route the frame.
		switch frame.Type {
		case rwp.FrameResponse, rwp.FrameErr:
			// Correlate with pending request.
			if val, ok := c.pending.Load(frame.CorrelID); ok {
				ch := val.(chan *rwp.Frame) //nolint:errcheck // pending map always stores chan *rwp.Frame
				select {
				case ch <- &frame:
				default:
				}
			}
		case rwp.FrameEvent:
			var evt rwp.OfferEvent
			if json.Unmarshal(frame.Data, &evt) != nil {
				continue
			}
			if c.closed.Load() {
				return
			}
			select {
			case c.offers <- &OfferNotification{Event: frame.Event, Offer: evt}:
			default:
				// Drop if the consumer is slow.
			}
		case rwp.FramePong:
			// Ignore pong frames.
		}
	}
}

// tryReconnect attempts to reconnect with exponential backoff.
func (c *Client) tryReconnect() {
	delay := c.baseDelay
	for i := range c.maxRetries {
		c.logger.Info("RWP client reconnecting",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
		)
		time.Sleep(delay)

		if err := c.connect(context.Background()); err != nil {
			c.logger.Warn("RWP client reconnect failed", slog.String("error", err.Error()))
			delay = min(delay*2, 30*time.Second)
			continue
		}

		c.logger.Info("RWP client reconnected")
		go c.readLoop()
		return
	}
	c.logger.Error("RWP client: max reconnection attempts reached")
}

// request sends a request frame and waits for the correlated response.
func (c *Client) request(ctx context.Context, method string, data any) (*rwp.Frame, error) {
	frame := &rwp.Frame{
		ID:        rwp.GenerateFrameID(),
		Type:      rwp.FrameRequest,
		Method:    method,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		frame.Data = raw
	}

	respCh := make(chan *rwp.Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == rwp.FrameErr {
			msg := "unknown error"
			if resp.Error != nil {
				msg = resp.Error.Message
			}
			return nil, fmt.Errorf("RWP error: %s", msg)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeFrame JSON-encodes and sends a frame over the WebSocket.
func (c *Client) writeFrame(frame *rwp.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return wsutil.WriteClientText(c.conn, data)
}

// SessionID returns the session ID assigned by the server.
func (c *Client) SessionID() string { return c.sessionID }

// Offers returns the channel of pushed offer lifecycle events. Only
// connections dialed with WithWorkerID receive offer events. The
// channel is closed when the client closes.
func (c *Client) Offers() <-chan *OfferNotification { return c.offers }

// Close closes the client connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	close(c.offers)

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
