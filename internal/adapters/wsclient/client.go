// Package wsclient is the client side of the signaling channel: one
// websocket to the relay, shared by chat and the voice mesh.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrBackpressure         = errors.New("backpressure")
)

const writeWait = 5 * time.Second

type Options struct {
	// Header is sent with the handshake, e.g. a client token cookie.
	Header     http.Header
	SendBuffer int
	PingPeriod time.Duration
	ReadLimit  int64
}

// Client implements core.Transport over a gorilla websocket.
type Client struct {
	url      string
	opts     Options
	registry *Registry

	mu     sync.RWMutex
	conn   *websocket.Conn
	send   chan core.Frame
	cancel context.CancelFunc
	done   chan struct{}
}

var _ core.Transport = (*Client)(nil)

func New(url string, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 16
	}
	return &Client{
		url:      url,
		opts:     opts,
		registry: NewRegistry(),
	}
}

// Connect dials the relay and starts the pumps. Inbound messages are
// dispatched from the read pump goroutine.
func (c *Client) Connect(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	ws.SetReadLimit(c.opts.ReadLimit)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		cancel()
		_ = ws.Close()
		return errors.New("already connected")
	}
	c.conn = ws
	c.send = make(chan core.Frame, c.opts.SendBuffer)
	c.cancel = cancel
	c.done = make(chan struct{})
	send, done := c.send, c.done
	c.mu.Unlock()

	log.Info().Str("module", "wsclient").Str("url", c.url).Msg("connected")

	go c.writePump(ctx, ws, send)
	go c.readPump(ctx, ws, done)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Done is closed when the current connection ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

func (c *Client) Handle(kind domain.Kind, fn core.Handler) (remove func()) {
	return c.registry.Handle(kind, fn)
}

func (c *Client) HandleDefault(fn core.Handler) (remove func()) {
	return c.registry.HandleDefault(fn)
}

// Send is best effort: failures are logged and the message dropped.
func (c *Client) Send(msg domain.Message) {
	if err := c.TrySend(msg); err != nil {
		log.Warn().Err(err).Str("module", "wsclient").Str("kind", string(msg.Type)).Msg("message dropped")
	}
}

// TrySend is Send with the failure reported to the caller.
func (c *Client) TrySend(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return ErrTransportUnavailable
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close ends the connection. It is safe to call when not connected.
func (c *Client) Close() {
	c.mu.Lock()
	ws, cancel := c.conn, c.cancel
	if ws == nil {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.cancel = nil
	close(c.send)
	c.mu.Unlock()

	cancel()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = ws.Close()
	log.Info().Str("module", "wsclient").Msg("closed")
}

func (c *Client) writePump(ctx context.Context, ws *websocket.Conn, send <-chan core.Frame) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "wsclient").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "wsclient").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "wsclient").Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, ws *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		c.Close()
		log.Info().Str("module", "wsclient").Msg("readPump closing")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("module", "wsclient").Msg("readPump read error")
			}
			return
		}
		msg, err := domain.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("bad json")
			continue
		}
		if n := c.registry.Dispatch(msg); n == 0 {
			log.Debug().Str("module", "wsclient").Str("kind", string(msg.Type)).Msg("no handler")
		}
	}
}
