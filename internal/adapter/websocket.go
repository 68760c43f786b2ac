package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Sentinel errors returned by WSClient.
var (
	ErrClosed     = errors.New("ws: connection closed")
	ErrOutboxFull = errors.New("ws: outbox full")
)

// WSConfig holds tunable parameters for a WSClient.
type WSConfig struct {
	URL string

	// Buffer sizes for the underlying TCP connection.
	ReadBufferSize  int
	WriteBufferSize int

	// HandshakeTimeout bounds the opening handshake only. Reads carry no
	// deadline: a silent feed blocks until the transport itself fails.
	HandshakeTimeout time.Duration

	// Headers sent during the WebSocket handshake.
	Headers http.Header
}

// DefaultWSConfig returns defaults tuned for a single market-data stream.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
	}
}

// WSClient is a single-session WebSocket connection. It does not reconnect:
// the first read or write failure ends the session and is reported through
// Err. Inbound text frames are delivered to every subscriber in order.
type WSClient struct {
	cfg WSConfig
	log zerolog.Logger

	mu   sync.RWMutex
	conn *websocket.Conn

	// subscribers receive every inbound text frame. Delivery blocks: a feed
	// consumer that skipped frames would corrupt its book.
	subMu sync.RWMutex
	subs  []chan []byte

	// outbox for sending messages through the connection.
	outbox chan []byte

	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.Mutex
	err   error
}

// NewWSClient creates a new WebSocket client. Call Subscribe before Connect
// so no frame is missed.
func NewWSClient(cfg WSConfig, logger zerolog.Logger) *WSClient {
	return &WSClient{
		cfg:    cfg,
		log:    logger.With().Str("component", "ws").Logger(),
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Subscribe returns a channel that receives every inbound text frame. The
// channel is closed when the session ends.
func (ws *WSClient) Subscribe() <-chan []byte {
	ch := make(chan []byte, 512)
	ws.subMu.Lock()
	ws.subs = append(ws.subs, ch)
	ws.subMu.Unlock()
	return ch
}

// Send enqueues a message for delivery over the WebSocket connection.
func (ws *WSClient) Send(data []byte) error {
	select {
	case ws.outbox <- data:
		return nil
	default:
		ws.log.Warn().Int("bytes", len(data)).Msg("outbox full, dropping message")
		return ErrOutboxFull
	}
}

// Connect dials the WebSocket endpoint and starts the read and write loops.
// It blocks until the handshake completes or fails.
func (ws *WSClient) Connect(ctx context.Context) error {
	ctx, ws.cancel = context.WithCancel(ctx)

	if err := ws.dial(ctx); err != nil {
		ws.cancel()
		return fmt.Errorf("ws: dial %s: %w", ws.cfg.URL, err)
	}
	ws.log.Info().Str("url", ws.cfg.URL).Msg("connected")

	go ws.readLoop(ctx)
	go ws.writeLoop(ctx)

	return nil
}

// Close shuts the session down. Subscriber channels are closed once the read
// loop has exited.
func (ws *WSClient) Close() {
	ws.shutdown(ErrClosed)
}

// Done returns a channel that is closed when the read loop has exited.
func (ws *WSClient) Done() <-chan struct{} {
	return ws.done
}

// Err returns the error that ended the session, or nil while it is live.
func (ws *WSClient) Err() error {
	ws.errMu.Lock()
	defer ws.errMu.Unlock()
	return ws.err
}

// dial establishes the WebSocket connection with TCP_NODELAY enabled.
func (ws *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:   ws.cfg.ReadBufferSize,
		WriteBufferSize:  ws.cfg.WriteBufferSize,
		HandshakeTimeout: ws.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	conn, _, err := dialer.DialContext(ctx, ws.cfg.URL, ws.cfg.Headers)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	return nil
}

// readLoop delivers text frames to subscribers until the connection fails or
// the session is shut down. It owns the subscriber channels and closes them
// on exit.
func (ws *WSClient) readLoop(ctx context.Context) {
	defer close(ws.done)
	defer ws.closeSubs()

	ws.mu.RLock()
	c := ws.conn
	ws.mu.RUnlock()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			ws.shutdown(fmt.Errorf("ws: read: %w", err))
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !ws.fanOut(ctx, msg) {
			return
		}
	}
}

// writeLoop drains the outbox and writes messages to the connection.
func (ws *WSClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ws.outbox:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				ws.shutdown(fmt.Errorf("ws: write: %w", err))
				return
			}
		}
	}
}

// fanOut delivers msg to every subscriber, waiting on slow ones. It returns
// false once the session is shutting down.
func (ws *WSClient) fanOut(ctx context.Context, msg []byte) bool {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for _, ch := range ws.subs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// shutdown records the first terminal error, stops both loops and closes the
// connection. Safe to call more than once and from any goroutine.
func (ws *WSClient) shutdown(cause error) {
	ws.errMu.Lock()
	first := ws.err == nil
	if first {
		ws.err = cause
	}
	ws.errMu.Unlock()

	if first && !errors.Is(cause, ErrClosed) {
		ws.log.Error().Err(cause).Msg("session ended")
	}

	if ws.cancel != nil {
		ws.cancel()
	}
	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.Close()
	}
	ws.mu.Unlock()
}

func (ws *WSClient) closeSubs() {
	ws.subMu.Lock()
	defer ws.subMu.Unlock()
	for _, ch := range ws.subs {
		close(ch)
	}
	ws.subs = nil
}
